package config

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// New parses the URL, applies the timeouts and pings the server.
func (r RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}

	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

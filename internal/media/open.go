package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/circuitbreaker"
	"github.com/jogardn/coastal-farmer/internal/config"
)

type BreakerObserver interface {
	Recorder
	SetBreakerState(name string, state int)
}

// Open builds the configured backend behind a circuit breaker. transport is
// used for HTTP based backends and may be nil.
func Open(ctx context.Context, cfg config.MediaConfig, transport http.RoundTripper, observer BreakerObserver, logger *logrus.Logger) (Host, error) {
	var (
		host Host
		err  error
	)

	switch cfg.Backend {
	case "none":
		logger.Warn("Media backend disabled, image uploads will fail")
		return Disabled{}, nil
	case "cloudinary":
		host, err = NewCloudinary(CloudinaryConfig{
			UploadPrefix: cfg.CloudinaryBaseURL,
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			Folder:       cfg.Folder,
		}, transport, logger)
		if err != nil {
			return nil, err
		}
	case "s3":
		host, err = NewS3(ctx, S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			PublicURL:    cfg.S3PublicURL,
			Folder:       cfg.Folder,
		}, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "media-" + cfg.Backend,
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
		Ignore:      func(err error) bool { return errors.Is(err, ErrRejected) },
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			if observer != nil {
				observer.SetBreakerState(name, int(to))
			}
		},
	}, logger)

	logger.WithField("backend", cfg.Backend).Info("Media backend configured")
	return NewGuarded(host, breaker, observer), nil
}

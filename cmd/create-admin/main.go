// Command create-admin provisions an administrator account in the configured
// store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/auth"
	"github.com/jogardn/coastal-farmer/internal/config"
	"github.com/jogardn/coastal-farmer/internal/store"
)

type options struct {
	Name     string
	Email    string
	Password string
	LogLevel string
}

func main() {
	opts := parseFlags()
	logger := setupLogger(opts.LogLevel)

	if err := run(opts, logger); err != nil {
		logger.WithError(err).Error("Failed to create administrator")
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.Name, "name", "Administrator", "Display name")
	flag.StringVar(&opts.Email, "email", "", "Login email (required)")
	flag.StringVar(&opts.Password, "password", os.Getenv("ADMIN_PASSWORD"), "Password, defaults to $ADMIN_PASSWORD")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	return opts
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func run(opts options, logger *logrus.Logger) error {
	if opts.Email == "" || opts.Password == "" {
		return fmt.Errorf("-email and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("STORE_DRIVER is memory, nothing would be persisted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	created, err := auth.EnsureAdmin(ctx, st, auth.NewHasher(cfg.BcryptCost), opts.Name, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	if !created {
		logger.WithField("email", opts.Email).Info("Administrator already exists")
		return nil
	}

	logger.WithField("email", opts.Email).Info("Administrator created")
	return nil
}

package media

import (
	"context"
	"errors"
	"io"

	"github.com/jogardn/coastal-farmer/internal/circuitbreaker"
	"github.com/jogardn/coastal-farmer/internal/errx"
)

// MessageUnavailable is the message attached to every failed host call.
const MessageUnavailable = "media host unavailable"

type Recorder interface {
	MediaOperation(operation string, err error)
}

// Guarded runs every call to the wrapped host through a circuit breaker.
// Rejections of the caller's input pass through as validation errors; every
// other failure becomes an internal "media host unavailable" error.
type Guarded struct {
	host     Host
	breaker  *circuitbreaker.CircuitBreaker
	recorder Recorder
}

func NewGuarded(host Host, breaker *circuitbreaker.CircuitBreaker, recorder Recorder) *Guarded {
	return &Guarded{host: host, breaker: breaker, recorder: recorder}
}

func (g *Guarded) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*UploadResult, error) {
	var out *UploadResult
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.host.Upload(ctx, body, filename, contentType)
		return err
	})
	g.record("upload", err)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *Guarded) Delete(ctx context.Context, publicID string) (*DeleteResult, error) {
	var out *DeleteResult
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.host.Delete(ctx, publicID)
		return err
	})
	g.record("delete", err)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *Guarded) record(op string, err error) {
	if g.recorder != nil {
		g.recorder.MediaOperation(op, err)
	}
}

func classify(err error) error {
	if _, ok := errx.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errx.Internal(err)
	}
	return errx.New(errx.KindInternal, MessageUnavailable, err)
}

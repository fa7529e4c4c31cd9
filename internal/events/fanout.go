package events

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type Recorder interface {
	EventPublished(eventType string, err error)
}

// Fanout delivers each event to every publisher in order. Failures are
// logged and joined; callers on the request path ignore the result.
type Fanout struct {
	publishers []Publisher
	recorder   Recorder
	logger     *logrus.Logger
}

func NewFanout(logger *logrus.Logger, recorder Recorder, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, recorder: recorder, logger: logger}
}

func (f *Fanout) Add(p Publisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"event_type": event.Type,
				"id":         event.ID,
			}).Warn("Failed to publish event")
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if f.recorder != nil {
		f.recorder.EventPublished(string(event.Type), err)
	}
	return err
}

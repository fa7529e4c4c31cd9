// Package media uploads product images to an external host and removes them
// again by public id.
package media

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/jogardn/coastal-farmer/internal/errx"
)

var (
	ErrInvalidURL = errors.New("invalid image url")
	ErrDisabled   = errors.New("media backend disabled")
	// ErrRejected marks a request the host refused because of its content.
	ErrRejected = errors.New("media host rejected the request")
)

// rejected reports a client-side failure with the host's message. It maps to
// 400 and is not counted by the circuit breaker.
func rejected(message string) error {
	if message == "" {
		message = "Image rejected by media host"
	}
	return errx.New(errx.KindValidation, message, ErrRejected)
}

type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

type DeleteResult struct {
	Result string `json:"result"`
}

type Host interface {
	Upload(ctx context.Context, body io.Reader, filename, contentType string) (*UploadResult, error)
	Delete(ctx context.Context, publicID string) (*DeleteResult, error)
}

// ExtractPublicID derives the host's public id from an image URL. The path
// must contain the folder segment followed by at least one more segment; the
// result runs from the folder to the last segment with its extension cut.
func ExtractPublicID(rawURL, folder string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || folder == "" {
		return "", ErrInvalidURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := -1
	for i, s := range segments {
		if s == folder {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(segments)-1 {
		return "", ErrInvalidURL
	}

	rest := segments[idx:]
	last := rest[len(rest)-1]
	if dot := strings.Index(last, "."); dot >= 0 {
		last = last[:dot]
	}
	if last == "" {
		return "", ErrInvalidURL
	}
	rest[len(rest)-1] = last

	for _, s := range rest {
		if s == "" {
			return "", ErrInvalidURL
		}
	}
	return strings.Join(rest, "/"), nil
}

// Disabled is the host used when MEDIA_BACKEND is none.
type Disabled struct{}

func (Disabled) Upload(context.Context, io.Reader, string, string) (*UploadResult, error) {
	return nil, errx.New(errx.KindInternal, MessageUnavailable, ErrDisabled)
}

func (Disabled) Delete(context.Context, string) (*DeleteResult, error) {
	return nil, errx.New(errx.KindInternal, MessageUnavailable, ErrDisabled)
}

// Package httputil writes JSON responses and renders classified errors.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/errx"
)

// MessageResponse is the body of every message-only response.
type MessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"message":"Internal Server Error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func WriteMessage(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, MessageResponse{Message: message})
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errx.Validation("Invalid request body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errx.New(errx.KindValidation, "Invalid request body", err)
	}
	return nil
}

// DecodePatch decodes a partial update into v. An empty body is an empty
// patch and leaves v untouched.
func DecodePatch(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return errx.New(errx.KindValidation, "Invalid request body", err)
	}
	return nil
}

// Renderer turns errors into responses. Internal failures carry their detail
// only when exposeErrors is set.
type Renderer struct {
	exposeErrors bool
	logger       *logrus.Logger
}

func NewRenderer(exposeErrors bool, logger *logrus.Logger) *Renderer {
	return &Renderer{exposeErrors: exposeErrors, logger: logger}
}

func (rn *Renderer) ExposesErrors() bool {
	return rn.exposeErrors
}

func (rn *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errx.As(err)
	if !ok {
		e = errx.Internal(err)
	}

	status := e.Kind.Status()
	message := e.Message
	if status >= http.StatusInternalServerError {
		rn.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"kind":   e.Kind.String(),
		}).WithError(err).Error("Request failed")

		switch {
		case rn.exposeErrors:
			message = err.Error()
		case message == "" || e.Kind == errx.KindInternal:
			message = errx.InternalMessage
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}

	WriteMessage(w, status, message)
}

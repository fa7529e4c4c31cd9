package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/internal/httputil"
)

// FallbackResponse is written when a handler panics.
type FallbackResponse struct {
	Message string      `json:"message"`
	Error   interface{} `json:"error"`
}

// Recover is the top-level fallback. The panic value is returned only when
// exposeErrors is set; otherwise the error field is an empty object.
func Recover(exposeErrors bool, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"panic":      rec,
					"stack":      string(debug.Stack()),
					"request_id": RequestIDFrom(r.Context()),
				}).Error("Unhandled panic")

				var detail interface{} = struct{}{}
				if exposeErrors {
					detail = fmt.Sprint(rec)
				}
				httputil.WriteJSON(w, http.StatusInternalServerError, FallbackResponse{
					Message: errx.InternalMessage,
					Error:   detail,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NotFound answers unmatched routes in the same JSON shape as everything else.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteMessage(w, http.StatusNotFound, "Route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

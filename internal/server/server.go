// Package server assembles the route table and the HTTP server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/auth"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/internal/media"
	"github.com/jogardn/coastal-farmer/internal/middleware"
	"github.com/jogardn/coastal-farmer/internal/observability"
	"github.com/jogardn/coastal-farmer/internal/orders"
	"github.com/jogardn/coastal-farmer/internal/products"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

const WelcomeMessage = "Welcome to Coastal Farmer API"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries every collaborator the routes need. Hub, Limiter and
// Tracer are optional.
type Options struct {
	Health   Pinger
	Tokens   middleware.TokenVerifier
	Login    *auth.Handler
	Products *products.Handler
	Orders   *orders.Handler
	Media    *media.Handler
	Hub      http.Handler
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	Limiter      middleware.Limiter
	LoginWindow  time.Duration
	ExposeErrors bool
	Logger       *logrus.Logger
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHandler returns the complete handler chain: tracing, request ids and
// panic recovery around the router.
func NewHandler(opts Options) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(middleware.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(middleware.MethodNotAllowed)

	router.Use(middleware.Logging(opts.Logger))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthGate(opts.Tokens, opts.Logger)(
			middleware.RequireRole(models.RoleAdmin)(h),
		)
	}

	router.HandleFunc("/", root).Methods(http.MethodGet)
	router.HandleFunc("/health", health(opts.Health)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var login http.Handler = http.HandlerFunc(opts.Login.Login)
	if opts.Limiter != nil {
		login = middleware.Throttle(opts.Limiter, opts.LoginWindow, opts.Logger)(login)
	}
	router.Handle("/api/auth/login", login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()

	p := opts.Products
	api.HandleFunc("/products", p.ListPublic).Methods(http.MethodGet)
	api.Handle("/products/private", admin(p.ListPrivate)).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", p.Get).Methods(http.MethodGet)
	api.Handle("/products", admin(p.Create)).Methods(http.MethodPost)
	api.Handle("/products/{id}", admin(p.Update)).Methods(http.MethodPut)
	api.Handle("/products/{id}", admin(p.Delete)).Methods(http.MethodDelete)

	o := opts.Orders
	api.Handle("/orders", admin(o.List)).Methods(http.MethodGet)
	api.Handle("/orders/{id}", admin(o.Get)).Methods(http.MethodGet)
	api.HandleFunc("/orders", o.Create).Methods(http.MethodPost)
	api.Handle("/orders/{id}", admin(o.Update)).Methods(http.MethodPut)
	api.Handle("/orders/{id}/status", admin(o.UpdateStatus)).Methods(http.MethodPatch)
	api.Handle("/orders/{id}", admin(o.Delete)).Methods(http.MethodDelete)

	api.HandleFunc("/upload", opts.Media.Upload).Methods(http.MethodPost)
	api.HandleFunc("/upload", opts.Media.Delete).Methods(http.MethodDelete)

	if opts.Hub != nil {
		api.Handle("/ws", admin(opts.Hub.ServeHTTP)).Methods(http.MethodGet)
	}

	handler := middleware.RequestID(middleware.Recover(opts.ExposeErrors, opts.Logger)(router))
	return opts.Tracer.Wrap(handler, "coastal-farmer-api")
}

func root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteMessage(w, http.StatusOK, WelcomeMessage)
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "DOWN", Timestamp: time.Now().UTC()})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "UP", Timestamp: time.Now().UTC()})
	}
}

// NewHTTPServer applies the process-wide timeouts.
func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

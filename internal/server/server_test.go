package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/coastal-farmer/internal/auth"
	"github.com/jogardn/coastal-farmer/internal/events"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/internal/media"
	"github.com/jogardn/coastal-farmer/internal/middleware"
	"github.com/jogardn/coastal-farmer/internal/observability"
	"github.com/jogardn/coastal-farmer/internal/orders"
	"github.com/jogardn/coastal-farmer/internal/products"
	"github.com/jogardn/coastal-farmer/internal/store"
	"github.com/jogardn/coastal-farmer/internal/websocket"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

const (
	adminEmail    = "admin@coastalfarmer.test"
	adminPassword = "harbour-view-42"
)

type testEnv struct {
	handler http.Handler
	tokens  *auth.TokenManager
	store   *store.MemoryStore
	hub     *websocket.Hub
}

func newTestEnv(t *testing.T, configure ...func(*Options)) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	st := store.NewMemoryStore()
	hasher := auth.NewHasher(4)
	_, err := auth.EnsureAdmin(context.Background(), st, hasher, "Admin", adminEmail, adminPassword)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	renderer := httputil.NewRenderer(false, logger)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	login, err := auth.NewHandler(st, hasher, tokens, renderer, metrics, logger)
	require.NoError(t, err)

	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	publisher := events.NewFanout(logger, metrics, hub)

	opts := Options{
		Health:   st,
		Tokens:   tokens,
		Login:    login,
		Products: products.NewHandler(st, publisher, renderer, logger),
		Orders:   orders.NewHandler(st, publisher, renderer, logger),
		Media:    media.NewHandler(media.Disabled{}, "coastal_farmer", renderer, logger),
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logger,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	handler := NewHandler(opts)
	return &testEnv{handler: handler, tokens: tokens, store: st, hub: hub}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login", "", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, auth.MessageLoginSuccessful, resp.Message)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

const productBody = `{"name":"Okra","description":"Fresh","price":1.2,"category":"vegetables","stock":9,"unit":"kg","image":"https://cdn.example.com/coastal_farmer/okra.jpg"}`

func TestEndToEndAdminFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	claims, err := env.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	rec := env.do(http.MethodPost, "/api/products", token, productBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/products", token, "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/products/private", token, "").Code)

	rec = env.do(http.MethodPost, "/api/products", "", productBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())

	customer, err := env.tokens.Issue("c-1", models.RoleCustomer)
	require.NoError(t, err)
	rec = env.do(http.MethodPost, "/api/products", customer, productBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"Forbidden"}`, rec.Body.String())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	wrong := env.do(http.MethodPost, "/api/auth/login", "", `{"email":"`+adminEmail+`","password":"nope"}`)
	unknown := env.do(http.MethodPost, "/api/auth/login", "", `{"email":"ghost@example.com","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestRouteGates(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	public := []struct{ method, path, body string }{
		{http.MethodGet, "/api/products", ""},
		{http.MethodPost, "/api/orders", `{"customerName":"Kofi","customerPhone":"0244"}`},
	}
	for _, r := range public {
		rec := env.do(r.method, r.path, "", r.body)
		assert.NotEqual(t, http.StatusUnauthorized, rec.Code, r.path)
	}

	adminOnly := []struct{ method, path string }{
		{http.MethodGet, "/api/products/private"},
		{http.MethodPut, "/api/products/x"},
		{http.MethodDelete, "/api/products/x"},
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/x"},
		{http.MethodPut, "/api/orders/x"},
		{http.MethodPatch, "/api/orders/x/status"},
		{http.MethodDelete, "/api/orders/x"},
		{http.MethodGet, "/api/ws"},
	}
	for _, r := range adminOnly {
		assert.Equal(t, http.StatusUnauthorized, env.do(r.method, r.path, "", `{}`).Code, r.method+" "+r.path)
	}

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/orders/x", token, "").Code)
}

func TestLoginThrottleOnlyCountsFailures(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	env := newTestEnv(t, func(o *Options) {
		o.Limiter = middleware.NewRedisLimiter(client, 3, time.Minute, "login")
		o.LoginWindow = time.Minute
	})

	for i := 0; i < 4; i++ {
		env.login(t)
	}

	wrong := `{"email":"` + adminEmail + `","password":"not-it"}`
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", "", wrong).Code)
	}
	rec := env.do(http.MethodPost, "/api/auth/login", "", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"message":"`+middleware.MessageTooManyAttempts+`"}`, rec.Body.String())
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", "", "")
	assert.JSONEq(t, `{"message":"Welcome to Coastal Farmer API"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "UP", health.Status)

	rec = env.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coastal_login_attempts_total")

	rec = env.do(http.MethodGet, "/does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Route not found"}`, rec.Body.String())

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type downStore struct{}

func (downStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthReportsDown(t *testing.T) {
	rec := httptest.NewRecorder()
	health(downStore{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DOWN"`)
}

func TestAdminFeedReceivesEvents(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := env.do(http.MethodPost, "/api/orders", "", `{"customerName":"Esi","customerPhone":"0201"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.OrderCreated, event.Type)
	assert.Equal(t, events.ResourceOrder, event.Resource)
}

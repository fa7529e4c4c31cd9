package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func render(t *testing.T, rn *Renderer, err error) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	rn.Error(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil), err)

	var body MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body.Message
}

func TestRendererHidesInternalDetailOutsideDevelopment(t *testing.T) {
	rn := NewRenderer(false, quietLogger())

	code, msg := render(t, rn, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, errx.InternalMessage, msg)
}

func TestRendererExposesInternalDetailInDevelopment(t *testing.T) {
	rn := NewRenderer(true, quietLogger())

	code, msg := render(t, rn, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "pq: connection refused", msg)
}

func TestRendererClassifiedErrors(t *testing.T) {
	rn := NewRenderer(false, quietLogger())

	code, msg := render(t, rn, errx.NotFound("Product not found"))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Product not found", msg)

	code, msg = render(t, rn, errx.Validation("price must be >= 0"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "price must be >= 0", msg)

	code, msg = render(t, rn, errx.New(errx.KindUnavailable, "media host unavailable", errors.New("breaker open")))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "media host unavailable", msg)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := DecodeJSON(r, &v)
	require.Error(t, err)
	assert.Equal(t, errx.KindValidation, errx.KindOf(err))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"kale"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "kale", v.Name)
}

func TestDecodePatchAcceptsEmptyBody(t *testing.T) {
	var v struct {
		Name *string `json:"name"`
	}
	for _, body := range []string{"", "  \n"} {
		r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
		require.NoError(t, DecodePatch(r, &v))
		assert.Nil(t, v.Name)
	}

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":`))
	err := DecodePatch(r, &v)
	require.Error(t, err)
	assert.Equal(t, errx.KindValidation, errx.KindOf(err))

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"kale"}`))
	require.NoError(t, DecodePatch(r, &v))
	require.NotNil(t, v.Name)
	assert.Equal(t, "kale", *v.Name)
}

func TestModelValidationRendersAsBadRequest(t *testing.T) {
	rn := NewRenderer(false, quietLogger())
	code, msg := render(t, rn, &models.ValidationError{Message: "stock must be >= 0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "stock must be >= 0", msg)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"status": "UP"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
}

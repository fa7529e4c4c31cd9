package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/coastal-farmer/internal/circuitbreaker"
	"github.com/jogardn/coastal-farmer/internal/config"
	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/internal/httputil"
)

const folder = "coastal_farmer"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestExtractPublicID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
		err  bool
	}{
		{name: "cloudinary url", url: "https://res.cloudinary.com/demo/image/upload/v12345/coastal_farmer/tomatoes.jpg", want: "coastal_farmer/tomatoes"},
		{name: "nested path", url: "https://res.cloudinary.com/demo/image/upload/coastal_farmer/veg/carrot.png", want: "coastal_farmer/veg/carrot"},
		{name: "no extension", url: "https://cdn.example.com/coastal_farmer/5f0c", want: "coastal_farmer/5f0c"},
		{name: "query ignored", url: "https://cdn.example.com/coastal_farmer/a.webp?w=200", want: "coastal_farmer/a"},
		{name: "missing folder", url: "https://res.cloudinary.com/demo/image/upload/v1/other/tomatoes.jpg", err: true},
		{name: "folder is last segment", url: "https://res.cloudinary.com/demo/coastal_farmer", err: true},
		{name: "folder with trailing slash only", url: "https://res.cloudinary.com/demo/coastal_farmer/", err: true},
		{name: "name is only an extension", url: "https://cdn.example.com/coastal_farmer/.jpg", err: true},
		{name: "not a url", url: "tomatoes.jpg", err: true},
		{name: "empty", url: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPublicID(tt.url, folder)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newFakeCloudinary(t *testing.T, handler http.HandlerFunc) *Cloudinary {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewCloudinary(CloudinaryConfig{
		UploadPrefix: srv.URL + "/",
		CloudName:    "demo",
		APIKey:       "key",
		APISecret:    "shh",
		Folder:       folder,
	}, nil, quietLogger())
	require.NoError(t, err)
	return c
}

func TestCloudinaryUpload(t *testing.T) {
	c := newFakeCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1_1/demo/"), r.URL.Path)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/upload"), r.URL.Path)

		assert.Equal(t, folder, r.FormValue("folder"))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.NotEmpty(t, r.FormValue("signature"))
		assert.NotEmpty(t, r.FormValue("timestamp"))

		json.NewEncoder(w).Encode(map[string]string{
			"secure_url": "https://res.cloudinary.com/demo/image/upload/v1/coastal_farmer/abc.png",
			"public_id":  "coastal_farmer/abc",
		})
	})

	res, err := c.Upload(context.Background(), strings.NewReader("png-bytes"), "abc.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "coastal_farmer/abc", res.PublicID)
	assert.True(t, strings.HasPrefix(res.URL, "https://res.cloudinary.com/"))
}

func TestCloudinaryDelete(t *testing.T) {
	c := newFakeCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/image/destroy", r.URL.Path)
		assert.Equal(t, "coastal_farmer/abc", r.FormValue("public_id"))
		assert.NotEmpty(t, r.FormValue("signature"))
		w.Write([]byte(`{"result":"ok"}`))
	})

	res, err := c.Delete(context.Background(), "coastal_farmer/abc")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Result)
}

func TestCloudinaryRejectionIsValidationError(t *testing.T) {
	c := newFakeCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid image file"}}`))
	})

	_, err := c.Upload(context.Background(), strings.NewReader("not-an-image"), "a.txt", "text/plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	e, ok := errx.As(err)
	require.True(t, ok)
	assert.Equal(t, errx.KindValidation, e.Kind)
	assert.Equal(t, "Invalid image file", e.Message)
}

func TestCloudinaryHostFailures(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, 420, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			c := newFakeCloudinary(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
			})

			_, err := c.Delete(context.Background(), "coastal_farmer/abc")
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrRejected)
			_, classified := errx.As(err)
			assert.False(t, classified)
		})
	}
}

// countingObserver satisfies BreakerObserver for tests that go through Open.
type countingObserver struct {
	states map[string]int
}

func (o *countingObserver) MediaOperation(operation string, err error) {}

func (o *countingObserver) SetBreakerState(name string, state int) {
	o.states[name] = state
}

func TestRejectedUploadsDoNotOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid image file"}}`))
	}))
	defer srv.Close()

	observer := &countingObserver{states: map[string]int{}}
	host, err := Open(context.Background(), config.MediaConfig{
		Backend:             "cloudinary",
		Folder:              folder,
		CloudinaryCloudName: "demo",
		CloudinaryAPIKey:    "key",
		CloudinaryAPISecret: "shh",
		CloudinaryBaseURL:   srv.URL,
		BreakerMaxFailures:  5,
		BreakerTimeout:      time.Hour,
	}, nil, observer, quietLogger())
	require.NoError(t, err)
	h := newTestHandler(host, true)

	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		h.Upload(rec, multipartRequest(t, "image", "bad.png", []byte("garbage")))
		require.Equal(t, http.StatusBadRequest, rec.Code, "upload %d: %s", i+1, rec.Body.String())
		assert.Equal(t, "Invalid image file", decode(t, rec)["message"])
	}

	assert.Equal(t, int32(6), calls.Load())
	assert.Empty(t, observer.states)
}

type fakeObjects struct {
	put    *s3.PutObjectInput
	body   []byte
	del    *s3.DeleteObjectInput
	putErr error
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.del = in
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3UploadAndDelete(t *testing.T) {
	objects := &fakeObjects{}
	host := newS3WithClient(objects, S3Config{
		Bucket:    "images",
		PublicURL: "https://cdn.example.com/",
		Folder:    folder,
	}, quietLogger())
	host.newID = func() string { return "1234" }

	res, err := host.Upload(context.Background(), strings.NewReader("jpeg"), "a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/coastal_farmer/1234", res.URL)
	assert.Equal(t, "coastal_farmer/1234", res.PublicID)
	assert.Equal(t, "images", *objects.put.Bucket)
	assert.Equal(t, "image/jpeg", *objects.put.ContentType)
	assert.Equal(t, "jpeg", string(objects.body))

	publicID, err := ExtractPublicID(res.URL, folder)
	require.NoError(t, err)

	del, err := host.Delete(context.Background(), publicID)
	require.NoError(t, err)
	assert.Equal(t, "ok", del.Result)
	assert.Equal(t, "coastal_farmer/1234", *objects.del.Key)
}

type stubHost struct {
	uploads int
	deleted []string
	err     error
}

func (s *stubHost) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*UploadResult, error) {
	s.uploads++
	if s.err != nil {
		return nil, s.err
	}
	return &UploadResult{URL: "https://cdn.example.com/coastal_farmer/" + filename, PublicID: "coastal_farmer/" + filename}, nil
}

func (s *stubHost) Delete(ctx context.Context, publicID string) (*DeleteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.deleted = append(s.deleted, publicID)
	return &DeleteResult{Result: "ok"}, nil
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	stub := &stubHost{err: errors.New("connection reset")}
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "media", MaxFailures: 2, Timeout: time.Hour}, quietLogger())
	guarded := NewGuarded(stub, breaker, nil)

	for i := 0; i < 3; i++ {
		_, err := guarded.Upload(context.Background(), strings.NewReader("x"), "x.png", "image/png")
		e, ok := errx.As(err)
		require.True(t, ok)
		assert.Equal(t, errx.KindInternal, e.Kind)
		assert.Equal(t, MessageUnavailable, e.Message)
	}

	assert.Equal(t, 2, stub.uploads)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if field != "" {
		part, err := form.CreateFormFile(field, filename)
		require.NoError(t, err)
		part.Write(content)
	} else {
		form.WriteField("note", "no file")
	}
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func newTestHandler(host Host, expose bool) *Handler {
	return NewHandler(host, folder, httputil.NewRenderer(expose, quietLogger()), quietLogger())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadHandler(t *testing.T) {
	t.Run("uploads the image field", func(t *testing.T) {
		stub := &stubHost{}
		rec := httptest.NewRecorder()
		newTestHandler(stub, false).Upload(rec, multipartRequest(t, "image", "kale.png", []byte("png")))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "https://cdn.example.com/coastal_farmer/kale.png", body["url"])
		assert.Equal(t, "coastal_farmer/kale.png", body["public_id"])
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestHandler(&stubHost{}, false).Upload(rec, multipartRequest(t, "", "", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MessageNoFile, decode(t, rec)["message"])
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		newTestHandler(&stubHost{}, false).Upload(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MessageNoFile, decode(t, rec)["message"])
	})

	t.Run("oversized file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		big := bytes.Repeat([]byte("a"), MaxUploadSize+multipartMemoryLimit+1)
		stub := &stubHost{}
		newTestHandler(stub, false).Upload(rec, multipartRequest(t, "image", "big.png", big))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, stub.uploads)
	})

	t.Run("host failure hidden in production", func(t *testing.T) {
		rec := httptest.NewRecorder()
		host := NewGuarded(&stubHost{err: errors.New("dial tcp: timeout")},
			circuitbreaker.New(circuitbreaker.Config{Name: "media"}, quietLogger()), nil)
		newTestHandler(host, false).Upload(rec, multipartRequest(t, "image", "a.png", []byte("png")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, errx.InternalMessage, decode(t, rec)["message"])
	})

	t.Run("host failure detailed in development", func(t *testing.T) {
		rec := httptest.NewRecorder()
		host := NewGuarded(&stubHost{err: errors.New("dial tcp: timeout")},
			circuitbreaker.New(circuitbreaker.Config{Name: "media"}, quietLogger()), nil)
		newTestHandler(host, true).Upload(rec, multipartRequest(t, "image", "a.png", []byte("png")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decode(t, rec)["message"], MessageUnavailable)
	})
}

func TestDeleteHandler(t *testing.T) {
	deleteRequest := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodDelete, "/api/upload", strings.NewReader(body))
	}

	t.Run("deletes by derived public id", func(t *testing.T) {
		stub := &stubHost{}
		rec := httptest.NewRecorder()
		newTestHandler(stub, false).Delete(rec, deleteRequest(`{"url":"https://res.cloudinary.com/demo/image/upload/v9/coastal_farmer/kale.png"}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Image deleted successfully","result":{"result":"ok"}}`, rec.Body.String())
		assert.Equal(t, []string{"coastal_farmer/kale"}, stub.deleted)
	})

	t.Run("missing url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestHandler(&stubHost{}, false).Delete(rec, deleteRequest(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MessageURLRequired, decode(t, rec)["message"])
	})

	t.Run("url outside folder", func(t *testing.T) {
		stub := &stubHost{}
		rec := httptest.NewRecorder()
		newTestHandler(stub, false).Delete(rec, deleteRequest(`{"url":"https://example.com/other/kale.png"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MessageInvalidURL, decode(t, rec)["message"])
		assert.Empty(t, stub.deleted)
	})

	t.Run("disabled backend", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestHandler(Disabled{}, false).Delete(rec, deleteRequest(`{"url":"https://cdn.example.com/coastal_farmer/kale.png"}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

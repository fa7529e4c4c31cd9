package media

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/internal/httputil"
)

// MaxUploadSize bounds the image part of an upload.
const MaxUploadSize = 10 << 20

const (
	MessageNoFile        = "No file uploaded"
	MessageFileTooLarge  = "File too large"
	MessageURLRequired   = "Image URL is required"
	MessageInvalidURL    = "Invalid image URL"
	MessageImageDeleted  = "Image deleted successfully"
	uploadFormField      = "image"
	multipartMemoryLimit = 1 << 20
)

type DeleteRequest struct {
	URL string `json:"url"`
}

type DeleteResponse struct {
	Message string        `json:"message"`
	Result  *DeleteResult `json:"result"`
}

type Handler struct {
	host     Host
	folder   string
	renderer *httputil.Renderer
	logger   *logrus.Logger
}

func NewHandler(host Host, folder string, renderer *httputil.Renderer, logger *logrus.Logger) *Handler {
	return &Handler{host: host, folder: folder, renderer: renderer, logger: logger}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart framing around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+multipartMemoryLimit)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderer.Error(w, r, errx.New(errx.KindValidation, MessageFileTooLarge, err))
			return
		}
		h.renderer.Error(w, r, errx.New(errx.KindValidation, MessageNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		h.renderer.Error(w, r, errx.New(errx.KindValidation, MessageNoFile, err))
		return
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		h.renderer.Error(w, r, errx.Validation(MessageFileTooLarge))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.host.Upload(r.Context(), file, header.Filename, contentType)
	if err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"public_id": result.PublicID,
		"size":      header.Size,
	}).Info("Image uploaded")
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if req.URL == "" {
		h.renderer.Error(w, r, errx.Validation(MessageURLRequired))
		return
	}

	publicID, err := ExtractPublicID(req.URL, h.folder)
	if err != nil {
		h.renderer.Error(w, r, errx.New(errx.KindValidation, MessageInvalidURL, err))
		return
	}

	result, err := h.host.Delete(r.Context(), publicID)
	if err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	h.logger.WithField("public_id", publicID).Info("Image deleted")
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{Message: MessageImageDeleted, Result: result})
}

package products

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/errx"
	"github.com/jogardn/coastal-farmer/internal/events"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/internal/store"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

const (
	MessageNotFound = "Product not found"
	MessageRemoved  = "Product removed"
)

type Handler struct {
	repo      store.ProductRepository
	publisher events.Publisher
	renderer  *httputil.Renderer
	logger    *logrus.Logger
	now       func() time.Time
}

func NewHandler(repo store.ProductRepository, publisher events.Publisher, renderer *httputil.Renderer, logger *logrus.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{
		repo:      repo,
		publisher: publisher,
		renderer:  renderer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListPublic serves the catalogue without stock and originalPrice.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		h.renderer.Error(w, r, errx.Internal(err))
		return
	}

	out := make([]models.PublicProduct, 0, len(products))
	for _, p := range products {
		out = append(out, p.Public())
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ListPrivate(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		h.renderer.Error(w, r, errx.Internal(err))
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.renderer.Error(w, r, h.storeError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	p, err := in.NewProduct(h.now())
	if err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if err := h.repo.CreateProduct(r.Context(), p); err != nil {
		h.renderer.Error(w, r, h.storeError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"product_id": p.ID,
		"name":       p.Name,
	}).Info("Product created")
	h.publish(r.Context(), events.ProductCreated, p.ID, p)

	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var in models.ProductInput
	if err := httputil.DecodePatch(r, &in); err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	p, err := h.repo.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.renderer.Error(w, r, h.storeError(err))
		return
	}

	h.logger.WithField("product_id", p.ID).Info("Product updated")
	h.publish(r.Context(), events.ProductUpdated, p.ID, p)

	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.DeleteProduct(r.Context(), id); err != nil {
		h.renderer.Error(w, r, h.storeError(err))
		return
	}

	h.logger.WithField("product_id", id).Info("Product removed")
	h.publish(r.Context(), events.ProductDeleted, id, nil)

	httputil.WriteMessage(w, http.StatusOK, MessageRemoved)
}

func (h *Handler) storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errx.NotFound(MessageNotFound)
	case errors.Is(err, store.ErrDuplicate):
		return errx.New(errx.KindConflict, "Product already exists", err)
	default:
		if _, ok := errx.As(err); ok {
			return err
		}
		return errx.Internal(err)
	}
}

// publish never fails the request; the fan-out logs its own failures.
func (h *Handler) publish(ctx context.Context, t events.Type, id string, data interface{}) {
	if err := h.publisher.Publish(ctx, events.New(t, events.ResourceProduct, id, data, h.now())); err != nil {
		h.logger.WithError(err).WithField("event_type", t).Debug("Event publish failed")
	}
}

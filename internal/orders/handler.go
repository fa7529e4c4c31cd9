package orders

import (
	"context"
	"errors"
	"net/http"
	"strings"
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
	MessageNotFound       = "Order not found"
	MessageRemoved        = "Order removed"
	MessageStatusRequired = "Status is required"
)

type Handler struct {
	repo      store.OrderRepository
	publisher events.Publisher
	renderer  *httputil.Renderer
	logger    *logrus.Logger
	now       func() time.Time
}

func NewHandler(repo store.OrderRepository, publisher events.Publisher, renderer *httputil.Renderer, logger *logrus.Logger) *Handler {
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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListOrders(r.Context())
	if err != nil {
		h.renderer.Error(w, r, errx.Internal(err))
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.renderer.Error(w, r, storeError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

// Create is open to any caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.OrderInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		h.logger.WithError(err).Debug("Failed to decode order request")
		h.renderer.Error(w, r, err)
		return
	}

	order, err := in.NewOrder(h.now())
	if err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if err := h.repo.CreateOrder(r.Context(), order); err != nil {
		h.renderer.Error(w, r, storeError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_type":   order.OrderType,
		"total_amount": order.TotalAmount,
		"items_count":  len(order.Items),
	}).Info("Order created")
	h.publish(r.Context(), events.OrderCreated, order.ID, order)

	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var in models.OrderInput
	if err := httputil.DecodePatch(r, &in); err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	order, err := h.repo.UpdateOrder(r.Context(), id, in)
	if err != nil {
		h.renderer.Error(w, r, storeError(err))
		return
	}

	h.logger.WithField("order_id", order.ID).Info("Order updated")
	h.publish(r.Context(), events.OrderUpdated, order.ID, order)

	httputil.WriteJSON(w, http.StatusOK, order)
}

// UpdateStatus changes only the status field.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.StatusUpdate
	if err := httputil.DecodePatch(r, &req); err != nil {
		h.renderer.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		h.renderer.Error(w, r, errx.Validation(MessageStatusRequired))
		return
	}

	status := models.OrderStatus(req.Status)
	patch := models.OrderInput{Status: &status}
	if err := patch.Validate(); err != nil {
		h.renderer.Error(w, r, err)
		return
	}

	order, err := h.repo.UpdateOrder(r.Context(), id, patch)
	if err != nil {
		h.renderer.Error(w, r, storeError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("Order status changed")
	h.publish(r.Context(), events.OrderStatusChanged, order.ID, order)

	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.DeleteOrder(r.Context(), id); err != nil {
		h.renderer.Error(w, r, storeError(err))
		return
	}

	h.logger.WithField("order_id", id).Info("Order removed")
	h.publish(r.Context(), events.OrderDeleted, id, nil)

	httputil.WriteMessage(w, http.StatusOK, MessageRemoved)
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errx.NotFound(MessageNotFound)
	}
	if _, ok := errx.As(err); ok {
		return err
	}
	return errx.Internal(err)
}

func (h *Handler) publish(ctx context.Context, t events.Type, id string, data interface{}) {
	if err := h.publisher.Publish(ctx, events.New(t, events.ResourceOrder, id, data, h.now())); err != nil {
		h.logger.WithError(err).WithField("event_type", t).Debug("Event publish failed")
	}
}

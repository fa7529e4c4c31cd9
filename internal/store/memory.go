package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

// MemoryStore keeps everything in maps guarded by one RWMutex. Values are
// copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]models.Product
	orders   map[string]models.Order
	admins   map[string]models.Administrator // keyed by lower-cased email
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
		admins:   make(map[string]models.Administrator),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = uuid.New().String()
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, id string, patch models.ProductInput) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Apply(patch, m.now())
	m.products[id] = p
	return &p, nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, copyOrder(o))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.ID = uuid.New().String()
	m.orders[o.ID] = copyOrder(*o)
	return nil
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, id string, patch models.OrderInput) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Apply(patch, m.now())
	m.orders[id] = o
	o = copyOrder(o)
	return &o, nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *MemoryStore) FindAdminByEmail(ctx context.Context, email string) (*models.Administrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.admins[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) CreateAdmin(ctx context.Context, admin *models.Administrator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(admin.Email)
	if _, ok := m.admins[key]; ok {
		return ErrDuplicate
	}
	if admin.ID == "" {
		admin.ID = uuid.New().String()
	}
	m.admins[key] = *admin
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	return o
}

// Package store persists products, orders and administrators.
//
// Updates are field-level and atomic per record: a patch only touches the
// fields it carries and never goes through a read-modify-write of the whole
// record.
package store

import (
	"context"
	"errors"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type ProductRepository interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	// CreateProduct assigns the ID.
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id string, patch models.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type OrderRepository interface {
	// ListOrders returns orders newest orderDate first.
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, id string, patch models.OrderInput) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type AdminStore interface {
	// FindAdminByEmail returns nil, nil when no administrator has the email.
	FindAdminByEmail(ctx context.Context, email string) (*models.Administrator, error)
	// CreateAdmin returns ErrDuplicate when the email is taken.
	CreateAdmin(ctx context.Context, admin *models.Administrator) error
}

type Store interface {
	ProductRepository
	OrderRepository
	AdminStore
	Ping(ctx context.Context) error
	Close() error
}

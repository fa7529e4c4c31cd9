//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("coastal_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	s, err := OpenPostgres(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStoreAgainstRealDatabase(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	p := &models.Product{Name: "Sea bass", Description: "Line caught", Price: 22, Category: "fish",
		Stock: 8, Unit: "kg", Image: "img", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateProduct(ctx, p))

	stock := 2
	updated, err := s.UpdateProduct(ctx, p.ID, models.ProductInput{Stock: &stock, Name: nil})
	require.NoError(t, err)
	assert.Equal(t, "Sea bass", updated.Name)
	assert.Equal(t, 2, updated.Stock)
	assert.Equal(t, 22.0, updated.Price)

	items := []models.OrderItem{{ProductID: p.ID, ProductName: p.Name, UnitPrice: 22, Quantity: 1}}
	o := &models.Order{OrderType: models.OrderTypeOnline, CustomerName: "Ana", CustomerPhone: "0812",
		OrderDate: now, Items: items, TotalAmount: 22, Status: models.StatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateOrder(ctx, o))

	status := models.StatusConfirmed
	got, err := s.UpdateOrder(ctx, o.ID, models.OrderInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, p.ID, got.Items[0].ProductID)

	_, err = s.GetOrder(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	admin := &models.Administrator{Name: "Owner", Email: "owner@example.com", PasswordHash: "h", Role: models.RoleAdmin, CreatedAt: now}
	require.NoError(t, s.CreateAdmin(ctx, admin))
	assert.ErrorIs(t, s.CreateAdmin(ctx, &models.Administrator{Name: "Dup", Email: "OWNER@example.com", PasswordHash: "h", Role: models.RoleAdmin, CreatedAt: now}), ErrDuplicate)

	found, err := s.FindAdminByEmail(ctx, "Owner@Example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, admin.ID, found.ID)
}

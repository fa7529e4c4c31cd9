package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/pkg/models"
)

const uniqueViolation = "23505"

const productColumns = `id, name, description, price, category, stock, unit, image,
	discount, original_price, is_public, created_at, updated_at`

const orderColumns = `id, order_type, customer_name, customer_phone, customer_address,
	order_date, items, total_amount, status, notes, created_at, updated_at`

type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// OpenPostgres connects, waits for the database to accept connections and
// creates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var pingErr error
	for i := 0; i < 30; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("database not reachable: %w", pingErr)
	}

	s := NewPostgresStore(db, logger)
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostgresStore) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
			category TEXT NOT NULL,
			stock INTEGER NOT NULL CHECK (stock >= 0),
			unit TEXT NOT NULL DEFAULT 'kg',
			image TEXT NOT NULL,
			discount DOUBLE PRECISION NOT NULL DEFAULT 0,
			original_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			order_type VARCHAR(16) NOT NULL DEFAULT 'offline',
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_address TEXT NOT NULL DEFAULT '',
			order_date TIMESTAMPTZ NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS admins (
			id VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role VARCHAR(16) NOT NULL DEFAULT 'admin',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_admins_email ON admins (lower(email))`,
		`CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders (order_date DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock,
		&p.Unit, &p.Image, &p.Discount, &p.OriginalPrice, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var items []byte
	err := row.Scan(&o.ID, &o.OrderType, &o.CustomerName, &o.CustomerPhone, &o.CustomerAddress,
		&o.OrderDate, &items, &o.TotalAmount, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Items = []models.OrderItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}
	return &o, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	p.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.Stock, p.Unit, p.Image,
		p.Discount, p.OriginalPrice, p.IsPublic, p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdateProduct applies the patch in one statement. A NULL parameter keeps
// the stored column.
func (s *PostgresStore) UpdateProduct(ctx context.Context, id string, patch models.ProductInput) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			price = COALESCE($4, price),
			category = COALESCE($5, category),
			stock = COALESCE($6, stock),
			unit = COALESCE($7, unit),
			image = COALESCE($8, image),
			discount = COALESCE($9, discount),
			original_price = COALESCE($10, original_price),
			is_public = COALESCE($11, is_public),
			updated_at = $12
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.Price, patch.Category, patch.Stock, patch.Unit,
		patch.Image, patch.Discount, patch.OriginalPrice, patch.IsPublic, s.now())
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func (s *PostgresStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	o.ID = uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.OrderType, o.CustomerName, o.CustomerPhone, o.CustomerAddress, o.OrderDate,
		string(items), o.TotalAmount, o.Status, o.Notes, o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, id string, patch models.OrderInput) (*models.Order, error) {
	var items interface{}
	if patch.Items != nil {
		data, err := json.Marshal(*patch.Items)
		if err != nil {
			return nil, fmt.Errorf("failed to encode order items: %w", err)
		}
		items = string(data)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE orders SET
			order_type = COALESCE($2, order_type),
			customer_name = COALESCE($3, customer_name),
			customer_phone = COALESCE($4, customer_phone),
			customer_address = COALESCE($5, customer_address),
			order_date = COALESCE($6, order_date),
			items = COALESCE($7::jsonb, items),
			total_amount = COALESCE($8, total_amount),
			status = COALESCE($9, status),
			notes = COALESCE($10, notes),
			updated_at = $11
		WHERE id = $1
		RETURNING `+orderColumns,
		id, nullableString(patch.OrderType), patch.CustomerName, patch.CustomerPhone,
		patch.CustomerAddress, patch.OrderDate, items, patch.TotalAmount,
		nullableString(patch.Status), patch.Notes, s.now())
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM orders WHERE id = $1`, id)
}

func (s *PostgresStore) FindAdminByEmail(ctx context.Context, email string) (*models.Administrator, error) {
	var a models.Administrator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM admins WHERE lower(email) = lower($1)`, email).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAdmin(ctx context.Context, admin *models.Administrator) error {
	if admin.ID == "" {
		admin.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		admin.ID, admin.Name, admin.Email, admin.PasswordHash, admin.Role, admin.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) deleteByID(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableString converts a pointer to a string-kinded enum into a driver
// value, nil when absent.
func nullableString[T ~string](v *T) interface{} {
	if v == nil {
		return nil
	}
	return string(*v)
}

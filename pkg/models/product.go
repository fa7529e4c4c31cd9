package models

import (
	"strings"
	"time"
)

const DefaultUnit = "kg"

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	Category      string    `json:"category"`
	Stock         int       `json:"stock"`
	Unit          string    `json:"unit"`
	Image         string    `json:"image"`
	Discount      float64   `json:"discount"`
	OriginalPrice float64   `json:"originalPrice"`
	IsPublic      bool      `json:"isPublic"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PublicProduct is the anonymous view of a product: stock and originalPrice
// are never part of it.
type PublicProduct struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Unit        string    `json:"unit"`
	Image       string    `json:"image"`
	Discount    float64   `json:"discount"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p Product) Public() PublicProduct {
	return PublicProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Unit:        p.Unit,
		Image:       p.Image,
		Discount:    p.Discount,
		IsPublic:    p.IsPublic,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProductInput is the request body for create and update. A nil field was
// either absent or explicitly null.
type ProductInput struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Price         *float64 `json:"price"`
	Category      *string  `json:"category"`
	Stock         *int     `json:"stock"`
	Unit          *string  `json:"unit"`
	Image         *string  `json:"image"`
	Discount      *float64 `json:"discount"`
	OriginalPrice *float64 `json:"originalPrice"`
	IsPublic      *bool    `json:"isPublic"`
}

// Validate checks the fields that are present.
func (in ProductInput) Validate() error {
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"name", in.Name},
		{"description", in.Description},
		{"category", in.Category},
		{"unit", in.Unit},
		{"image", in.Image},
	} {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return invalid("%s is required", f.name)
		}
	}

	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"price", in.Price},
		{"discount", in.Discount},
		{"originalPrice", in.OriginalPrice},
	} {
		if f.value != nil && *f.value < 0 {
			return invalid("%s must be >= 0", f.name)
		}
	}

	if in.Stock != nil && *in.Stock < 0 {
		return invalid("stock must be >= 0")
	}
	return nil
}

// NewProduct builds a product from a create payload. Every required field must
// be present. The store assigns the ID.
func (in ProductInput) NewProduct(now time.Time) (*Product, error) {
	missing := func(name string) error { return invalid("%s is required", name) }
	switch {
	case in.Name == nil:
		return nil, missing("name")
	case in.Description == nil:
		return nil, missing("description")
	case in.Price == nil:
		return nil, missing("price")
	case in.Category == nil:
		return nil, missing("category")
	case in.Stock == nil:
		return nil, missing("stock")
	case in.Unit == nil:
		return nil, missing("unit")
	case in.Image == nil:
		return nil, missing("image")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p := &Product{
		Unit:      DefaultUnit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Apply(in, now)
	return p, nil
}

// Apply merges the present fields of in into p and stamps UpdatedAt.
func (p *Product) Apply(in ProductInput, now time.Time) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Unit != nil {
		p.Unit = *in.Unit
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if in.Discount != nil {
		p.Discount = *in.Discount
	}
	if in.OriginalPrice != nil {
		p.OriginalPrice = *in.OriginalPrice
	}
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}
	p.UpdatedAt = now
}

package models

import (
	"strings"
	"time"
)

type OrderType string

const (
	OrderTypeOnline  OrderType = "online"
	OrderTypeOffline OrderType = "offline"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeOnline || t == OrderTypeOffline
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID              string      `json:"id"`
	OrderType       OrderType   `json:"orderType"`
	CustomerName    string      `json:"customerName"`
	CustomerPhone   string      `json:"customerPhone"`
	CustomerAddress string      `json:"customerAddress"`
	OrderDate       time.Time   `json:"orderDate"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	Status          OrderStatus `json:"status"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// OrderItem snapshots the product at order time. It is not linked back to the
// product record.
type OrderItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
}

// OrderInput is the request body for order create and update.
type OrderInput struct {
	OrderType       *OrderType   `json:"orderType"`
	CustomerName    *string      `json:"customerName"`
	CustomerPhone   *string      `json:"customerPhone"`
	CustomerAddress *string      `json:"customerAddress"`
	OrderDate       *time.Time   `json:"orderDate"`
	Items           *[]OrderItem `json:"items"`
	TotalAmount     *float64     `json:"totalAmount"`
	Status          *OrderStatus `json:"status"`
	Notes           *string      `json:"notes"`
}

type StatusUpdate struct {
	Status string `json:"status"`
}

func (in OrderInput) Validate() error {
	if in.CustomerName != nil && strings.TrimSpace(*in.CustomerName) == "" {
		return invalid("customerName is required")
	}
	if in.CustomerPhone != nil && strings.TrimSpace(*in.CustomerPhone) == "" {
		return invalid("customerPhone is required")
	}
	if in.OrderType != nil && !in.OrderType.Valid() {
		return invalid("%q is not a valid orderType", *in.OrderType)
	}
	if in.Status != nil && !in.Status.Valid() {
		return invalid("%q is not a valid status", *in.Status)
	}
	return nil
}

func (in OrderInput) NewOrder(now time.Time) (*Order, error) {
	if in.CustomerName == nil {
		return nil, invalid("customerName is required")
	}
	if in.CustomerPhone == nil {
		return nil, invalid("customerPhone is required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	o := &Order{
		OrderType: OrderTypeOffline,
		OrderDate: now,
		Items:     []OrderItem{},
		Status:    StatusPending,
		CreatedAt: now,
	}
	o.Apply(in, now)
	return o, nil
}

func (o *Order) Apply(in OrderInput, now time.Time) {
	if in.OrderType != nil {
		o.OrderType = *in.OrderType
	}
	if in.CustomerName != nil {
		o.CustomerName = *in.CustomerName
	}
	if in.CustomerPhone != nil {
		o.CustomerPhone = *in.CustomerPhone
	}
	if in.CustomerAddress != nil {
		o.CustomerAddress = *in.CustomerAddress
	}
	if in.OrderDate != nil {
		o.OrderDate = *in.OrderDate
	}
	if in.Items != nil {
		o.Items = append([]OrderItem{}, (*in.Items)...)
	}
	if in.TotalAmount != nil {
		o.TotalAmount = *in.TotalAmount
	}
	if in.Status != nil {
		o.Status = *in.Status
	}
	if in.Notes != nil {
		o.Notes = *in.Notes
	}
	o.UpdatedAt = now
}

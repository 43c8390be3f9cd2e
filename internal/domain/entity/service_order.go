package entity

import (
	"math"
	"time"
)

// ServiceOrder is a customer repair or maintenance request
type ServiceOrder struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	ClientName  string     `json:"client_name"`
	ClientPhone string     `json:"client_phone,omitempty"`
	Equipment   string     `json:"equipment,omitempty"`
	Address     string     `json:"address,omitempty"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Technician  string     `json:"technician,omitempty"`
	LineItems   []LineItem `json:"line_items"`
	// FiscalDocumentID is set when a fiscal document was issued before completion
	FiscalDocumentID string     `json:"fiscal_document_id,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LineItem is a billable part or labour entry on a service order
type LineItem struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Subtotal returns quantity × unit price for the line
func (li LineItem) Subtotal() float64 {
	return li.Quantity * li.UnitPrice
}

// Total sums quantity × unit price over all line items, rounded to cents.
// No tax adjustment is applied.
func (o *ServiceOrder) Total() float64 {
	var total float64
	for _, item := range o.LineItems {
		total += item.Subtotal()
	}
	return RoundCents(total)
}

// IsCompletable reports whether a completion session may be opened for the order
func (o *ServiceOrder) IsCompletable() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled:
		return false
	default:
		return true
	}
}

// HasFiscalDocument reports whether the order already carries an issued fiscal document
func (o *ServiceOrder) HasFiscalDocument() bool {
	return o.FiscalDocumentID != ""
}

// RoundCents rounds an amount to two decimal places
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

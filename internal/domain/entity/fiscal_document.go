package entity

import "time"

// FiscalDocument is a service invoice (NFS-e) issued through the fiscal integration
type FiscalDocument struct {
	ID               int64     `json:"id"`
	ServiceOrderID   int64     `json:"service_order_id"`
	ExternalID       string    `json:"external_id"`
	VerificationCode string    `json:"verification_code"`
	Status           string    `json:"status"`
	Description      string    `json:"description"`
	ServiceCode      string    `json:"service_code"`
	Amount           float64   `json:"amount"`
	IssuedAt         time.Time `json:"issued_at"`
	CreatedAt        time.Time `json:"created_at"`
}

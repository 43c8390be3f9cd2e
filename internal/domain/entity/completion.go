package entity

import "time"

// CompletionRecord is the persisted outcome of a finalized completion session
type CompletionRecord struct {
	ID                      int64     `json:"id"`
	ServiceOrderID          int64     `json:"service_order_id"`
	SessionID               string    `json:"session_id"`
	TechnicalReport         string    `json:"technical_report"`
	Attachments             []string  `json:"attachments"`
	TechnicianSignature     string    `json:"technician_signature,omitempty"`
	ClientSignature         string    `json:"client_signature,omitempty"`
	AdministrativeBypass    bool      `json:"administrative_bypass"`
	PaymentConfirmed        bool      `json:"payment_confirmed"`
	FiscalDocumentRequested bool      `json:"fiscal_document_requested"`
	FiscalSkipped           bool      `json:"fiscal_skipped"`
	FiscalDocumentID        string    `json:"fiscal_document_id,omitempty"`
	TotalAmount             float64   `json:"total_amount"`
	CompletedBy             string    `json:"completed_by"`
	CompletedAt             time.Time `json:"completed_at"`
	CreatedAt               time.Time `json:"created_at"`
}

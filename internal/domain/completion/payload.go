package completion

import "time"

// Payload is the immutable result of a finalized session. Build it with NewPayload; the
// slices and pointers it holds are private copies.
type Payload struct {
	SessionID               string        `json:"session_id"`
	ServiceOrderID          int64         `json:"service_order_id"`
	TechnicalReport         string        `json:"technical_report"`
	Attachments             []string      `json:"attachments"`
	TechnicianSignature     string        `json:"technician_signature,omitempty"`
	ClientSignature         string        `json:"client_signature,omitempty"`
	AdministrativeBypass    bool          `json:"administrative_bypass"`
	FiscalDocumentRequested bool          `json:"fiscal_document_requested"`
	FiscalSkipped           bool          `json:"fiscal_skipped"`
	FiscalDocumentDraft     *FiscalDraft  `json:"fiscal_document_draft,omitempty"`
	FiscalDocumentResult    *FiscalResult `json:"fiscal_document_result,omitempty"`
	PaymentConfirmed        bool          `json:"payment_confirmed"`
	TotalAmount             float64       `json:"total_amount"`
	CompletedBy             string        `json:"completed_by"`
	CompletedAt             time.Time     `json:"completed_at"`
}

// PayloadMeta is session context that is not part of the draft
type PayloadMeta struct {
	SessionID      string
	ServiceOrderID int64
	TotalAmount    float64
	CompletedBy    string
	CompletedAt    time.Time
}

// NewPayload snapshots a validated draft
func NewPayload(d Draft, meta PayloadMeta) Payload {
	c := d.Clone()
	p := Payload{
		SessionID:               meta.SessionID,
		ServiceOrderID:          meta.ServiceOrderID,
		TechnicalReport:         c.TechnicalReport,
		Attachments:             c.AttachmentURLs(),
		TechnicianSignature:     c.TechnicianSignature,
		ClientSignature:         c.ClientSignature,
		AdministrativeBypass:    c.AdministrativeBypass,
		FiscalDocumentRequested: c.FiscalDocumentRequested(),
		FiscalSkipped:           c.FiscalSkipped(),
		PaymentConfirmed:        c.PaymentConfirmed,
		TotalAmount:             meta.TotalAmount,
		CompletedBy:             meta.CompletedBy,
		CompletedAt:             meta.CompletedAt,
	}
	if c.FiscalDocumentRequested() {
		p.FiscalDocumentDraft = c.FiscalDraft
		p.FiscalDocumentResult = c.FiscalResult
	}
	return p
}

// HasFiscalResult reports whether an issued document travels with the payload
func (p Payload) HasFiscalResult() bool {
	return p.FiscalDocumentResult != nil
}

package completion

import (
	"sort"
	"time"

	"github.com/garyjia/field-service/internal/domain/workflow"
)

// SignatureRole names who signed
type SignatureRole string

const (
	RoleTechnician SignatureRole = "technician"
	RoleClient     SignatureRole = "client"
)

// IsValid returns true for the two known signer roles
func (r SignatureRole) IsValid() bool {
	return r == RoleTechnician || r == RoleClient
}

// FiscalDraft is the request sent to the fiscal emission service
type FiscalDraft struct {
	Description string  `json:"description"`
	ServiceCode string  `json:"service_code"`
	Amount      float64 `json:"amount"`
}

// Complete reports whether the draft can be sent for emission
func (f FiscalDraft) Complete() bool {
	return f.Description != "" && f.ServiceCode != "" && f.Amount > 0
}

// FiscalResult is what the emission service returns for an issued document
type FiscalResult struct {
	ID               string    `json:"id"`
	VerificationCode string    `json:"verification_code"`
	IssuedAt         time.Time `json:"issued_at"`
	Status           string    `json:"status"`
}

// Attachment is a confirmed upload. Seq is the issue order of the upload request, which
// fixes the display position regardless of completion order.
type Attachment struct {
	Seq uint64 `json:"seq"`
	URL string `json:"url"`
}

// Draft is the session-scoped aggregate of everything collected by the wizard.
// It is a value: Apply returns a modified copy and never mutates its input.
type Draft struct {
	TechnicalReport      string         `json:"technical_report"`
	Attachments          []Attachment   `json:"attachments"`
	TechnicianSignature  string         `json:"technician_signature,omitempty"`
	ClientSignature      string         `json:"client_signature,omitempty"`
	AdministrativeBypass bool           `json:"administrative_bypass"`
	PaymentConfirmed     bool           `json:"payment_confirmed"`
	FiscalDocumentIssued bool           `json:"fiscal_document_issued"`
	FiscalState          workflow.State `json:"fiscal_state"`
	FiscalDraft          *FiscalDraft   `json:"fiscal_document_draft,omitempty"`
	FiscalResult         *FiscalResult  `json:"fiscal_document_result,omitempty"`
	FiscalError          string         `json:"fiscal_document_error,omitempty"`
}

// NewDraft creates an empty draft. fiscalIssued marks an order that already has a fiscal
// document, which removes the emission step.
func NewDraft(fiscalIssued bool) Draft {
	return Draft{
		Attachments:          []Attachment{},
		FiscalDocumentIssued: fiscalIssued,
		FiscalState:          workflow.StateNotRequested,
	}
}

// Flags returns the step-resolution inputs carried by the draft
func (d Draft) Flags() Flags {
	return Flags{
		AdministrativeBypass: d.AdministrativeBypass,
		FiscalDocumentIssued: d.FiscalDocumentIssued,
	}
}

// Steps resolves the active step sequence for the draft
func (d Draft) Steps() []StepID {
	return ResolveStepsFor(d.Flags())
}

// FiscalDocumentRequested reports whether the operator asked for a fiscal document
func (d Draft) FiscalDocumentRequested() bool {
	return d.FiscalState.Requested()
}

// FiscalSkipped reports whether emission was abandoned after a failure
func (d Draft) FiscalSkipped() bool {
	return d.FiscalState == workflow.StateSkippedAfterFailure
}

// AttachmentURLs returns attachment URLs in issue order
func (d Draft) AttachmentURLs() []string {
	urls := make([]string, len(d.Attachments))
	for i, a := range d.Attachments {
		urls[i] = a.URL
	}
	return urls
}

// HasSignatures reports whether both signatures are present
func (d Draft) HasSignatures() bool {
	return d.TechnicianSignature != "" && d.ClientSignature != ""
}

// Signature returns the stored URL for role
func (d Draft) Signature(role SignatureRole) string {
	if role == RoleTechnician {
		return d.TechnicianSignature
	}
	return d.ClientSignature
}

// Clone copies every reference-typed field so the returned draft shares nothing with d
func (d Draft) Clone() Draft {
	out := d
	out.Attachments = append(make([]Attachment, 0, len(d.Attachments)), d.Attachments...)
	if d.FiscalDraft != nil {
		fd := *d.FiscalDraft
		out.FiscalDraft = &fd
	}
	if d.FiscalResult != nil {
		fr := *d.FiscalResult
		out.FiscalResult = &fr
	}
	return out
}

// insertAttachment places a by Seq; an already present Seq or URL is ignored
func (d *Draft) insertAttachment(a Attachment) {
	for _, existing := range d.Attachments {
		if existing.Seq == a.Seq || existing.URL == a.URL {
			return
		}
	}
	i := sort.Search(len(d.Attachments), func(i int) bool {
		return d.Attachments[i].Seq > a.Seq
	})
	d.Attachments = append(d.Attachments, Attachment{})
	copy(d.Attachments[i+1:], d.Attachments[i:])
	d.Attachments[i] = a
}

package entity

// Status constants for ServiceOrder
const (
	OrderStatusOpen       = "OPEN"
	OrderStatusScheduled  = "SCHEDULED"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

// Upload category tags passed to the file storage collaborator
const (
	CategoryAttachment          = "attachment"
	CategoryTechnicianSignature = "signature-technician"
	CategoryClientSignature     = "signature-client"
	CategoryReport              = "report"
)

// Fiscal document status values reported by the emission service
const (
	FiscalStatusIssued    = "issued"
	FiscalStatusPending   = "pending"
	FiscalStatusCancelled = "cancelled"
)

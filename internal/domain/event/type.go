package event

// Type identifies the type of domain event
type Type string

const (
	TypeSessionOpened      Type = "session.opened"
	TypeSessionClosed      Type = "session.closed"
	TypeAttachmentUploaded Type = "attachment.uploaded"
	TypeFiscalIssued       Type = "fiscal.issued"
	TypeFiscalFailed       Type = "fiscal.failed"
	TypeOrderCompleted     Type = "order.completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSessionOpened,
		TypeSessionClosed,
		TypeAttachmentUploaded,
		TypeFiscalIssued,
		TypeFiscalFailed,
		TypeOrderCompleted:
		return true
	default:
		return false
	}
}

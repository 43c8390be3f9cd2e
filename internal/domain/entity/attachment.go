package entity

// UploadFile is a file handed to the storage collaborator.
// Content is the raw blob; drafts only ever keep the returned URL.
type UploadFile struct {
	FileName string
	MimeType string
	Content  []byte
}

// Size returns the content length in bytes
func (f UploadFile) Size() int64 {
	return int64(len(f.Content))
}

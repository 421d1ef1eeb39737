package models

// Log sources readable from the admin logs endpoint.
const (
	SourceAdmin   = "admin"
	SourceContact = "contact"
)

// Limits for the logs endpoint.
const (
	DefaultLogLimit = 200
	MaxLogLimit     = 1000
)

// DefaultMaxUpload caps uploaded PDFs.
const DefaultMaxUpload = 10 << 20

// UploadResult describes a stored document.
type UploadResult struct {
	OK      bool   `json:"ok"`
	DocPath string `json:"docPath"`
	Pages   int    `json:"pages"`
}

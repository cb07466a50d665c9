package documents

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Document represents one uploaded piece of evidence attached to a case.
type Document struct {
	ID              string     `json:"id"`
	CaseID          string     `json:"caseId"`
	UserID          string     `json:"userId"`
	FileName        string     `json:"fileName"`
	MimeType        string     `json:"mimeType"`
	SizeBytes       int64      `json:"sizeBytes"`
	StorageProvider string     `json:"-"`
	StorageKey      string     `json:"-"`
	ExtractedText   string     `json:"-"`
	ExtractedAt     *time.Time `json:"extractedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

package documents

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispute-backend/internal/cases"
	"dispute-backend/internal/extract"
	"dispute-backend/internal/shared/storage/object"
	"dispute-backend/internal/shared/telemetry"
)

// Service contains business logic for case documents. Uploads are the side
// effect that moves a fresh case to DOCS_UPLOADED; every later document
// mutation only refreshes the case timestamp.
type Service struct {
	Store           object.ObjectStore
	Repo            Repo
	Cases           *cases.Service
	StorageProvider string
}

// Upload saves the file, records the document, extracts its text when the
// format is supported, and drives the case status side effect.
func (s *Service) Upload(ctx context.Context, caseID, userID, fileName string, r io.Reader) (Document, error) {
	if strings.TrimSpace(fileName) == "" {
		return Document{}, ErrInvalidInput
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userID, fileName, r)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:              uuid.NewString(),
		CaseID:          caseID,
		UserID:          userID,
		FileName:        fileName,
		MimeType:        mimeType,
		SizeBytes:       size,
		StorageProvider: s.StorageProvider,
		StorageKey:      storageKey,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}

	// Extraction failures are tolerated: unsupported formats are still
	// stored, the worker payload just omits their text.
	if text, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName); err == nil {
		now := time.Now().UTC()
		if err := s.Repo.UpdateExtraction(ctx, caseID, doc.ID, text, now); err == nil {
			doc.ExtractedText = text
			doc.ExtractedAt = &now
		}
	} else {
		telemetry.Info("document.extract_skipped", map[string]any{
			"case_id":     caseID,
			"document_id": doc.ID,
			"mime_type":   doc.MimeType,
			"error":       err.Error(),
		})
	}

	current, err := s.Cases.Get(ctx, caseID)
	if err != nil {
		return Document{}, err
	}
	if current.Status == cases.StatusNewIntake {
		if _, err := s.Cases.RecordFirstUpload(ctx, caseID); err != nil {
			return Document{}, err
		}
	} else {
		if err := s.Cases.Touch(ctx, caseID); err != nil {
			return Document{}, err
		}
	}

	return doc, nil
}

// List returns the documents attached to a case.
func (s *Service) List(ctx context.Context, caseID string) ([]Document, error) {
	return s.Repo.ListByCase(ctx, caseID)
}

// Delete removes a document. Status never regresses; the case timestamp is
// refreshed so callers can detect the change.
func (s *Service) Delete(ctx context.Context, caseID, documentID string) error {
	if err := s.Repo.Delete(ctx, caseID, documentID); err != nil {
		return err
	}
	return s.Cases.Touch(ctx, caseID)
}

// ExtractedText returns the extracted text for a document, running
// extraction on demand when it has not happened yet.
func (s *Service) ExtractedText(ctx context.Context, doc Document) (string, error) {
	if doc.ExtractedText != "" {
		return doc.ExtractedText, nil
	}
	text, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
	if err != nil {
		return "", err
	}
	if err := s.Repo.UpdateExtraction(ctx, doc.CaseID, doc.ID, text, time.Now().UTC()); err != nil {
		return "", err
	}
	return text, nil
}

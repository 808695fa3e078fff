package model

import (
	"time"

	"github.com/google/uuid"

	"cv-evaluation-service/internal/domain"
)

type DocumentKind string

const (
	DocumentKindCV            DocumentKind = "cv"
	DocumentKindProjectReport DocumentKind = "project_report"
)

// Document is an uploaded candidate file. Text extraction happens once at
// upload time; the pipeline only ever sees ParsedText.
type Document struct {
	ID           string
	Kind         DocumentKind
	OriginalName string
	FilePath     string
	ParsedText   string
	ParseError   string
	UploadedAt   time.Time
}

func NewDocument(kind DocumentKind, originalName, filePath string) (*Document, error) {
	if kind != DocumentKindCV && kind != DocumentKindProjectReport {
		return nil, domain.ErrInvalidArgument
	}
	if originalName == "" || filePath == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Document{
		ID:           uuid.NewString(),
		Kind:         kind,
		OriginalName: originalName,
		FilePath:     filePath,
		UploadedAt:   time.Now(),
	}, nil
}

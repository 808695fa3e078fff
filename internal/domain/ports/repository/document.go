package repository

import (
	"context"

	"cv-evaluation-service/internal/domain/model"
)

// DocumentRepository persists uploaded document records.
type DocumentRepository interface {
	Save(ctx context.Context, tx Tx, doc *model.Document) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Document, error)
}

// DocumentStore is the narrow contract the pipeline consumes: parsed text by
// document id. Fails with domain.ErrDocumentNotFound for unknown ids and
// domain.ErrParseFailure when upstream extraction failed.
type DocumentStore interface {
	GetParsedText(ctx context.Context, documentID string) (string, error)
}

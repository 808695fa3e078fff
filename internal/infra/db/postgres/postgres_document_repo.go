package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

func (r *documentRepo) Save(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	const q = `
INSERT INTO documents (id, kind, original_name, file_path, parsed_text, parse_error, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  parsed_text = EXCLUDED.parsed_text,
  parse_error = EXCLUDED.parse_error;`

	_, err := execSQL(ctx, r.pool, tx, q,
		doc.ID, string(doc.Kind), doc.OriginalName, doc.FilePath,
		doc.ParsedText, doc.ParseError, doc.UploadedAt)
	return err
}

func (r *documentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	row, err := pickRow(ctx, r.pool, tx, `
SELECT id, kind, original_name, file_path, parsed_text, parse_error, uploaded_at
FROM documents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	var doc model.Document
	var kind string
	err = row.Scan(&doc.ID, &kind, &doc.OriginalName, &doc.FilePath,
		&doc.ParsedText, &doc.ParseError, &doc.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	doc.Kind = model.DocumentKind(kind)
	return &doc, nil
}

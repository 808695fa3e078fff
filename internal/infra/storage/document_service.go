package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
)

// TextCipher encrypts extracted text before it is persisted. CV text is
// personal data; with a cipher configured the database only sees ciphertext.
type TextCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// DocumentService stores uploaded candidate files on disk and extracts their
// text once, at upload time. The pipeline never touches the raw file again;
// it reads ParsedText through the DocumentStore contract.
type DocumentService struct {
	repo      repository.DocumentRepository
	extractor TextExtractor
	cipher    TextCipher // nil disables at-rest encryption
	uploadDir string
	log       *zerolog.Logger
}

var _ repository.DocumentStore = (*DocumentService)(nil)

func NewDocumentService(repo repository.DocumentRepository, extractor TextExtractor, cipher TextCipher, uploadDir string, log *zerolog.Logger) (*DocumentService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DocumentService{repo: repo, extractor: extractor, cipher: cipher, uploadDir: uploadDir, log: log}, nil
}

// Upload persists the file, extracts its text and saves the document row.
// Extraction failure does not fail the upload; the error is recorded on the
// document and surfaces when a job tries to evaluate it.
func (s *DocumentService) Upload(ctx context.Context, kind model.DocumentKind, originalName string, r io.Reader) (*model.Document, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext != ".pdf" && ext != ".txt" {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidArgument, ext)
	}

	filePath := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	if err := writeFile(filePath, r); err != nil {
		return nil, err
	}

	doc, err := model.NewDocument(kind, originalName, filePath)
	if err != nil {
		return nil, err
	}

	text, err := s.extractText(filePath, ext)
	if err != nil {
		doc.ParseError = err.Error()
		s.log.Warn().Err(err).Str("document_id", doc.ID).Str("file", originalName).Msg("text extraction failed")
	} else if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(text)
		if err != nil {
			return nil, fmt.Errorf("encrypt parsed text: %w", err)
		}
		doc.ParsedText = sealed
	} else {
		doc.ParsedText = text
	}

	if err := s.repo.Save(ctx, nil, doc); err != nil {
		return nil, err
	}
	s.log.Info().Str("document_id", doc.ID).Str("kind", string(kind)).Int("chars", len(doc.ParsedText)).Msg("document uploaded")
	return doc, nil
}

// GetParsedText implements the DocumentStore contract for the pipeline.
func (s *DocumentService) GetParsedText(ctx context.Context, documentID string) (string, error) {
	doc, err := s.repo.FindByID(ctx, nil, documentID)
	if err != nil {
		if err == domain.ErrNotFound {
			return "", domain.ErrDocumentNotFound
		}
		return "", err
	}
	if doc.ParseError != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrParseFailure, doc.ParseError)
	}
	if doc.ParsedText == "" {
		return "", fmt.Errorf("%w: document has no extracted text", domain.ErrParseFailure)
	}
	if s.cipher != nil {
		text, err := s.cipher.Decrypt(doc.ParsedText)
		if err != nil {
			return "", fmt.Errorf("decrypt parsed text: %w", err)
		}
		return text, nil
	}
	return doc.ParsedText, nil
}

func (s *DocumentService) extractText(filePath, ext string) (string, error) {
	if ext == ".txt" {
		b, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("%w: read txt: %v", domain.ErrParseFailure, err)
		}
		text := normalizeText(string(b))
		if text == "" {
			return "", fmt.Errorf("%w: empty text file", domain.ErrParseFailure)
		}
		return text, nil
	}
	return s.extractor.ExtractText(filePath)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write upload file: %w", err)
	}
	return nil
}

package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/infra/metrics"
)

var _ adapter.ContextRetriever = (*QdrantRetriever)(nil)

// QdrantRetriever answers top-k similarity queries against the reference
// corpus collection. The collection is written only by the offline ingest
// command; at evaluation time it is read-only, so no locking is needed here.
type QdrantRetriever struct {
	client     *qdrant.Client
	embedder   adapter.Embedder
	collection string
	vectorSize uint64
}

func NewQdrantRetriever(cfg config.QdrantConfig, embedder adapter.Embedder) (*QdrantRetriever, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"
	port := 6334 // qdrant gRPC default
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantRetriever{
		client:     client,
		embedder:   embedder,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
	}, nil
}

// Retrieve embeds the query and returns up to k passages across the given
// document types, ordered by descending relevance. An unreachable index or
// one with no matching chunks fails with domain.ErrRetrievalUnavailable:
// evaluating without grounding context would silently degrade quality, so
// the caller must fail the stage instead.
func (q *QdrantRetriever) Retrieve(ctx context.Context, query string, docTypes []string, k int) ([]adapter.Passage, error) {
	embedding, err := q.embedder.Embed(ctx, query)
	if err != nil {
		metrics.IncRetrieval("unavailable")
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrievalUnavailable, err)
	}

	var passages []adapter.Passage
	for _, docType := range docTypes {
		results, err := q.search(ctx, embedding, docType, k)
		if err != nil {
			metrics.IncRetrieval("unavailable")
			return nil, fmt.Errorf("%w: search %s: %v", domain.ErrRetrievalUnavailable, docType, err)
		}
		passages = append(passages, results...)
	}
	if len(passages) == 0 {
		metrics.IncRetrieval("empty")
		return nil, fmt.Errorf("%w: no passages for types %v", domain.ErrRetrievalUnavailable, docTypes)
	}

	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > k {
		passages = passages[:k]
	}
	metrics.IncRetrieval("ok")
	return passages, nil
}

func (q *QdrantRetriever) search(ctx context.Context, embedding []float32, docType string, limit int) ([]adapter.Passage, error) {
	var filter *qdrant.Filter
	if docType != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_type", docType)},
		}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	passages := make([]adapter.Passage, 0, len(points))
	for _, point := range points {
		p := adapter.Passage{Score: point.Score}
		if text, ok := point.Payload["text"]; ok {
			if val, ok := text.GetKind().(*qdrant.Value_StringValue); ok {
				p.Text = val.StringValue
			}
		}
		if dtype, ok := point.Payload["doc_type"]; ok {
			if val, ok := dtype.GetKind().(*qdrant.Value_StringValue); ok {
				p.DocType = val.StringValue
			}
		}
		if p.Text != "" {
			passages = append(passages, p)
		}
	}
	return passages, nil
}

// EnsureCollection creates the corpus collection if it does not exist.
// Called by the ingest command, not by the evaluation path.
func (q *QdrantRetriever) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// UpsertChunk writes one embedded reference chunk with its doc_type payload.
// The point id is a UUID derived from docID, so re-ingesting the same corpus
// overwrites chunks in place instead of accumulating duplicates.
func (q *QdrantRetriever) UpsertChunk(ctx context.Context, docID, docType, text string, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(docID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"doc_id":   docID,
			"doc_type": docType,
			"text":     text,
		}),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// pointID maps a chunk's document id onto a stable UUID accepted by qdrant
// as a point id. Distinct chunks keep distinct ids; the same chunk keeps
// the same id across ingestion runs.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

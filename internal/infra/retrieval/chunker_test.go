//go:build !integration

package retrieval

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	t.Run("short text yields a single chunk", func(t *testing.T) {
		chunks := ChunkText("one small paragraph", 1000, 200)
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
		if chunks[0] != "one small paragraph" {
			t.Errorf("unexpected chunk content: %q", chunks[0])
		}
	})

	t.Run("chunks respect the size limit", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 40; i++ {
			sb.WriteString("This paragraph talks about backend engineering practices at some length.\n\n")
		}
		chunks := ChunkText(sb.String(), 300, 50)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			// Overlap carry can nudge a chunk slightly past the limit.
			if len(c) > 300+50+2 {
				t.Errorf("chunk %d length %d exceeds limit", i, len(c))
			}
		}
	})

	t.Run("consecutive chunks overlap", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 20; i++ {
			sb.WriteString("Paragraph about distributed systems and retries.\n\n")
		}
		chunks := ChunkText(sb.String(), 200, 40)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		tail := lastRunes(chunks[0], 40)
		if !strings.Contains(chunks[1], tail) {
			t.Errorf("second chunk does not carry the previous tail %q", tail)
		}
	})

	t.Run("oversized paragraph falls back to sentence splits", func(t *testing.T) {
		long := strings.Repeat("A sentence about evaluation pipelines. ", 30)
		chunks := ChunkText(long, 200, 0)
		if len(chunks) < 2 {
			t.Fatalf("expected sentence-level chunks, got %d", len(chunks))
		}
	})

	t.Run("empty input yields no chunks", func(t *testing.T) {
		if chunks := ChunkText("  \n\n ", 500, 100); len(chunks) != 0 {
			t.Errorf("expected no chunks, got %v", chunks)
		}
	})

	t.Run("degenerate overlap is clamped", func(t *testing.T) {
		chunks := ChunkText("some text", 100, 100)
		if len(chunks) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(chunks))
		}
	})
}

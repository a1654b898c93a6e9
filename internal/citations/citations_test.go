package citations

import (
	"strings"
	"testing"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

func intPtr(v int) *int { return &v }

func TestSerializeWithIDs(t *testing.T) {
	chunks := []models.EvidenceChunk{
		{Content: "Retrieval augments generation.", Page: intPtr(3), Source: "rag.pdf"},
		{Content: "Chunks are embedded.", Page: intPtr(7), Source: "rag.pdf"},
	}

	ctx, cites := SerializeWithIDs(chunks)

	if !strings.HasPrefix(ctx, "[C1] Chunk from page 3:\nRetrieval augments generation.") {
		t.Errorf("context does not open with the C1 block:\n%s", ctx)
	}
	if !strings.Contains(ctx, "\n\n[C2] Chunk from page 7:\nChunks are embedded.") {
		t.Errorf("context missing blank-line separated C2 block:\n%s", ctx)
	}
	if len(cites) != 2 {
		t.Fatalf("len(cites) = %d, want 2", len(cites))
	}
	c1 := cites["C1"]
	if c1.ChunkID != "C1" || c1.Source != "rag.pdf" || c1.FullContent != chunks[0].Content {
		t.Errorf("C1 entry = %+v", c1)
	}
	if c1.Page == nil || *c1.Page != 3 {
		t.Errorf("C1 page = %v, want 3", c1.Page)
	}
}

func TestSerializeWithIDsUnknownPage(t *testing.T) {
	ctx, _ := SerializeWithIDs([]models.EvidenceChunk{{Content: "no page metadata"}})
	if !strings.HasPrefix(ctx, "[C1] Chunk from page unknown:") {
		t.Errorf("nil page should render as unknown:\n%s", ctx)
	}
}

func TestSerializeWithIDsOffset(t *testing.T) {
	ctx, cites := SerializeWithIDsFrom([]models.EvidenceChunk{{Content: "later call", Page: intPtr(1)}}, 4)
	if !strings.HasPrefix(ctx, "[C5] ") {
		t.Errorf("offset 4 should start ids at C5:\n%s", ctx)
	}
	if _, ok := cites["C5"]; !ok {
		t.Errorf("cites missing C5: %v", cites)
	}
}

func TestSerializeWithIDsSnippetTruncation(t *testing.T) {
	long := strings.Repeat("x", 400)
	_, cites := SerializeWithIDs([]models.EvidenceChunk{{Content: long}})

	got := cites["C1"].Snippet
	if len([]rune(got)) != 153 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %d runes, want 150 chars plus ellipsis", len([]rune(got)))
	}
	if cites["C1"].FullContent != long {
		t.Errorf("FullContent must keep the untruncated text")
	}
}

func TestSerializeWithIDsTrimsContent(t *testing.T) {
	ctx, cites := SerializeWithIDs([]models.EvidenceChunk{{Content: "  padded content\n\n"}})

	if ctx != "[C1] Chunk from page unknown:\npadded content" {
		t.Errorf("context block not trimmed:\n%q", ctx)
	}
	c1 := cites["C1"]
	if c1.Snippet != "padded content" {
		t.Errorf("snippet = %q, want trimmed text", c1.Snippet)
	}
	if c1.FullContent != "padded content" {
		t.Errorf("FullContent = %q, want trimmed text", c1.FullContent)
	}
}

func TestSerializeWithIDsEmpty(t *testing.T) {
	ctx, cites := SerializeWithIDs(nil)
	if ctx != "" {
		t.Errorf("empty input context = %q, want empty", ctx)
	}
	if len(cites) != 0 {
		t.Errorf("empty input cites = %v, want empty map", cites)
	}
}

func TestSerializeWithIDsDeterministic(t *testing.T) {
	chunks := []models.EvidenceChunk{
		{Content: "a", Page: intPtr(1)},
		{Content: "b", Page: intPtr(2)},
	}
	first, _ := SerializeWithIDs(chunks)
	second, _ := SerializeWithIDs(chunks)
	if first != second {
		t.Errorf("serialization not deterministic:\n%s\n---\n%s", first, second)
	}
}

// Package citations assigns stable sequential ids to retrieved evidence
// chunks and serializes them into the annotated context block downstream
// stages cite against.
package citations

import (
	"fmt"
	"strings"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// snippetMax caps the preview stored in a citation entry.
const snippetMax = 150

// SerializeWithIDs annotates chunks with ids C1..Cn and returns the
// serialized context plus the citation entries keyed by id. Ids start at C1.
func SerializeWithIDs(chunks []models.EvidenceChunk) (string, map[string]models.RetrievalCitation) {
	return SerializeWithIDsFrom(chunks, 0)
}

// SerializeWithIDsFrom is SerializeWithIDs with an id offset: the first
// chunk gets C<startIndex+1>. The engine uses it to keep ids globally
// sequential across retrieval calls within one session.
func SerializeWithIDsFrom(chunks []models.EvidenceChunk, startIndex int) (string, map[string]models.RetrievalCitation) {
	if len(chunks) == 0 {
		return "", map[string]models.RetrievalCitation{}
	}

	cites := make(map[string]models.RetrievalCitation, len(chunks))
	blocks := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		id := fmt.Sprintf("C%d", startIndex+i+1)
		page := "unknown"
		if chunk.Page != nil {
			page = fmt.Sprintf("%d", *chunk.Page)
		}
		content := strings.TrimSpace(chunk.Content)
		blocks = append(blocks, fmt.Sprintf("[%s] Chunk from page %s:\n%s", id, page, content))

		cites[id] = models.RetrievalCitation{
			ChunkID:     id,
			Page:        chunk.Page,
			Snippet:     snippet(content),
			Source:      chunk.Source,
			FullContent: content,
		}
	}

	return strings.Join(blocks, "\n\n"), cites
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetMax {
		return content
	}
	return string(runes[:snippetMax]) + "..."
}

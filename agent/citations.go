package agent

import (
	"regexp"

	"github.com/chao-dotcom/RAGh-Tutor/rag"
)

// citationPattern matches bracketed references in generated text. The
// capture is matched against known chunk ids, so prose brackets that do
// not name a chunk are ignored.
var citationPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// Citation resolves one cited chunk id back to its source document.
type Citation struct {
	ChunkID  string `json:"chunk_id"`
	DocID    string `json:"doc_id"`
	Source   string `json:"source,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// extractCitations scans the answer for [chunk_id] references and resolves
// each against the retrieved chunks, first occurrence order, one entry per
// distinct chunk id.
func extractCitations(answer string, chunks []rag.ScoredChunk) []Citation {
	byID := make(map[string]rag.Chunk, len(chunks))
	for _, sc := range chunks {
		byID[sc.Chunk.ID] = sc.Chunk
	}

	seen := make(map[string]bool)
	citations := []Citation{}
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		id := match[1]
		chunk, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		citations = append(citations, Citation{
			ChunkID:  id,
			DocID:    chunk.DocID,
			Source:   chunk.Metadata["source"],
			Filename: chunk.Metadata["filename"],
		})
	}
	return citations
}

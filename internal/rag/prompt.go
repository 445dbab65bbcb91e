package rag

import (
	"fmt"
	"strings"

	"github.com/lantern-labs/lantern/internal/corpus"
)

// TemplateVersion identifies the prompt template. Changing the template is a
// deploy-time decision; bump the version when the layout changes.
const TemplateVersion = "v1"

// NoContextMarker is inserted in place of the context block when retrieval
// found nothing relevant, so the model can answer from general knowledge or
// decline, rather than the engine failing the request.
const NoContextMarker = "No relevant context was found in the knowledge base for this question."

const defaultPreamble = "You are a careful assistant answering questions about a document collection. " +
	"Answer using ONLY the context below. If the context does not contain the answer, say so " +
	"instead of guessing. Cite the sources you relied on."

// Prompt is an assembled, bounded prompt ready for generation, together with
// the provenance of every chunk it contains.
type Prompt struct {
	Preamble string
	Context  string
	Question string

	// UsedChunkIDs lists, in rank order, the id of every chunk whose text
	// made it into the context block.
	UsedChunkIDs []string

	// Sources lists the distinct source titles of the used chunks, in rank
	// order, for caller-facing provenance.
	Sources []string
}

// Render produces the final text sent to the language model.
func (p *Prompt) Render() string {
	var b strings.Builder
	b.WriteString(p.Preamble)
	b.WriteString("\n\nContext:\n")
	b.WriteString(p.Context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(p.Question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Assembler builds prompts under a fixed character budget. When the budget
// is exceeded it drops chunks from the lowest-ranked end; the question is
// never truncated.
type Assembler struct {
	maxLength int
	preamble  string
}

// NewAssembler creates an assembler with the given maximum rendered prompt
// length in characters.
func NewAssembler(maxLength int) *Assembler {
	return &Assembler{maxLength: maxLength, preamble: defaultPreamble}
}

// Assemble combines the question with the ranked retrieval results. Results
// must already be ordered by descending relevance. It fails with
// ErrPromptTooLarge when even a zero-chunk prompt exceeds the budget.
func (a *Assembler) Assemble(question string, results []corpus.ScoredChunk) (*Prompt, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", ErrInvalidPrompt)
	}

	kept := results
	for {
		p := a.build(question, kept)
		if a.maxLength <= 0 || len(p.Render()) <= a.maxLength {
			return p, nil
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("%w: question of %d characters cannot fit budget %d",
				ErrPromptTooLarge, len(question), a.maxLength)
		}
		// Drop the lowest-ranked chunk and retry.
		kept = kept[:len(kept)-1]
	}
}

func (a *Assembler) build(question string, results []corpus.ScoredChunk) *Prompt {
	p := &Prompt{
		Preamble: a.preamble,
		Question: question,
	}

	if len(results) == 0 {
		p.Context = NoContextMarker
		return p
	}

	var b strings.Builder
	seenTitles := make(map[string]struct{}, len(results))
	for _, sc := range results {
		// Each entry carries its source so answers stay traceable.
		fmt.Fprintf(&b, "[id: %s | source: %s]\n%s\n\n", sc.Chunk.ID, sc.Chunk.Title(), sc.Chunk.Text)
		p.UsedChunkIDs = append(p.UsedChunkIDs, sc.Chunk.ID)

		title := sc.Chunk.Title()
		if _, ok := seenTitles[title]; !ok {
			seenTitles[title] = struct{}{}
			p.Sources = append(p.Sources, title)
		}
	}
	p.Context = strings.TrimSuffix(b.String(), "\n")
	return p
}

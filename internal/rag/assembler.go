package rag

import (
	"fmt"
	"strings"
)

// TokenCounter estimates how many model tokens a text consumes. The default
// estimator divides byte length by four, a reasonable approximation for
// English prose; swap in a real tokenizer when exact budgets matter.
type TokenCounter interface {
	Count(text string) int
}

// EstimateTokens is the default TokenCounter.
type EstimateTokens struct{}

func (EstimateTokens) Count(text string) int {
	return (len(text) + 3) / 4
}

// Attribution records where a piece of assembled context came from.
type Attribution struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Context is the assembled prompt context for a query.
type Context struct {
	Text         string        `json:"text"`
	Attributions []Attribution `json:"attributions"`
	TokensUsed   int           `json:"tokens_used"`
}

// Assembler packs ranked search results into a token-budgeted context
// string with source attributions.
type Assembler struct {
	counter TokenCounter
	budget  int
}

// NewAssembler creates an Assembler with the given token budget. counter
// may be nil, in which case EstimateTokens is used.
func NewAssembler(budget int, counter TokenCounter) *Assembler {
	if counter == nil {
		counter = EstimateTokens{}
	}
	return &Assembler{counter: counter, budget: budget}
}

// separator joins context blocks and is charged against the budget.
const separator = "\n\n---\n\n"

// Assemble packs results into the token budget in rank order. Packing
// stops at the first result whose block, separator included, would exceed
// the budget; a lower-ranked result never displaces a higher-ranked one.
// The top result is included whenever it fits on its own.
func (a *Assembler) Assemble(results []Result) Context {
	var (
		blocks       []string
		attributions []Attribution
		used         int
	)

	for _, res := range results {
		block := fmt.Sprintf("[Source: %s, chunk %d]\n%s", res.Filename, res.ChunkIndex, res.Content)
		cost := a.counter.Count(block)
		if len(blocks) > 0 {
			cost += a.counter.Count(separator)
		}
		if used+cost > a.budget {
			break
		}
		used += cost
		blocks = append(blocks, block)
		attributions = append(attributions, Attribution{
			DocumentID: res.DocumentID.String(),
			Filename:   res.Filename,
			ChunkIndex: res.ChunkIndex,
			Score:      res.Score,
		})
	}

	return Context{
		Text:         strings.Join(blocks, separator),
		Attributions: attributions,
		TokensUsed:   used,
	}
}

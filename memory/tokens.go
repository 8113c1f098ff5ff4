package memory

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs in a prompt.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter estimates tokens as word count times 1.3. It is the
// default counter: cheap, deterministic, good enough for budget cuts.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// TiktokenCounter counts tokens exactly with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates an exact counter for the given model name.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

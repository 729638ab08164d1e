package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"reddit-insights/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the role and separator tokens chat formats add.
const perMessageOverhead = 4

// TokenCounter counts prompt tokens with the cl100k_base encoding. When the encoding
// cannot be loaded (offline hosts) it falls back to a four-bytes-per-token estimate.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	load func() (*tiktoken.Tiktoken, error)
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{load: func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding("cl100k_base")
	}}
}

// Text counts the tokens of one string.
func (c *TokenCounter) Text(s string) int {
	c.once.Do(func() {
		if c.load != nil {
			c.enc, _ = c.load()
		}
	})
	if c.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}

// Count totals a message list.
func (c *TokenCounter) Count(msgs []adapter.Message) int {
	n := 0
	for _, m := range msgs {
		n += c.Text(m.Content) + perMessageOverhead
	}
	return n
}

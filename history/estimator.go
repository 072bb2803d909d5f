package history

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates how many model tokens a piece of text costs.
type Estimator interface {
	Estimate(text string) int
}

const charsPerToken = 4

// CharEstimator assumes roughly four characters per token. It needs no
// vocabulary files and is deterministic across platforms.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 1
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// TiktokenEstimator counts BPE tokens with an OpenAI encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) Estimate(text string) int {
	n := len(t.enc.EncodeOrdinary(text))
	if n == 0 {
		return 1
	}
	return n
}

// NewEstimator picks an estimator by name. Loading the tiktoken vocabulary
// may need network access; on failure it falls back to CharEstimator.
func NewEstimator(name string, logger *slog.Logger) Estimator {
	if name != "tiktoken" {
		return CharEstimator{}
	}
	est, err := NewTiktokenEstimator("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to character estimate", "error", err)
		return CharEstimator{}
	}
	return est
}

package question

import (
	"context"
	"fmt"

	"github.com/minhvu/quoterush/internal/domain"
)

// Provider is the external question-bank generator. Type is the
// generator's question-shape tag, 1 through 4.
type Provider interface {
	Fetch(ctx context.Context, qtype int, difficulty domain.Difficulty) (domain.Question, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, qtype int, difficulty domain.Difficulty) (domain.Question, error)

func (f ProviderFunc) Fetch(ctx context.Context, qtype int, difficulty domain.Difficulty) (domain.Question, error) {
	return f(ctx, qtype, difficulty)
}

const (
	MinType = 1
	MaxType = 4
)

// Validate rejects malformed generator output before it can be
// committed into a room. A partial or broken question set must fail
// the whole game start.
func Validate(q domain.Question) error {
	if q.QuestionText == "" {
		return fmt.Errorf("question has no text")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q has %d options, need at least 2", q.QuestionText, len(q.Options))
	}

	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("question %q: correct answer is not among the options", q.QuestionText)
}

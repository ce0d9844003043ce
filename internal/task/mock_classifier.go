package task

import (
	"context"
	"sync"

	"github.com/phrazzld/moderation-api/internal/domain"
)

// MockClassifier is a scriptable Classifier for tests. With no PredictFn it
// labels every text "ham".
type MockClassifier struct {
	PredictFn func(ctx context.Context, call int, texts []string) ([]domain.Prediction, error)
	Info      *ModelsInfo

	mu    sync.Mutex
	calls int
}

// Predict records the call and delegates to PredictFn.
func (c *MockClassifier) Predict(ctx context.Context, texts []string) ([]domain.Prediction, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.PredictFn != nil {
		return c.PredictFn(ctx, call, texts)
	}
	return HamPredictions(texts), nil
}

// ModelsInfo returns Info, or a two-class description when Info is nil.
func (c *MockClassifier) ModelsInfo(ctx context.Context) (*ModelsInfo, error) {
	if c.Info != nil {
		return c.Info, nil
	}
	return &ModelsInfo{
		ModelAvailable: true,
		NumClasses:     2,
		Classes:        []ClassInfo{{ID: 0, Name: "ham"}, {ID: 1, Name: "spam"}},
	}, nil
}

// Calls returns how many times Predict ran.
func (c *MockClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// HamPredictions labels every text "ham" with full confidence.
func HamPredictions(texts []string) []domain.Prediction {
	out := make([]domain.Prediction, len(texts))
	for i, text := range texts {
		out[i] = domain.Prediction{
			Text:          text,
			Label:         "ham",
			LabelID:       0,
			Confidence:    1,
			Probabilities: map[string]float64{"ham": 1, "spam": 0},
		}
	}
	return out
}

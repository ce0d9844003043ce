package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/redact"
	"github.com/phrazzld/moderation-api/internal/task"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the classifier uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Classifier implements task.Classifier with a Gemini model.
type Classifier struct {
	generator contentGenerator
	model     string
	labels    []string
	logger    *slog.Logger
}

var (
	_ task.Classifier     = (*Classifier)(nil)
	_ task.ModelDescriber = (*Classifier)(nil)
)

// NewClassifier creates a Gemini-backed classifier from cfg.
func NewClassifier(ctx context.Context, cfg config.ClassifierConfig, log *slog.Logger) (*Classifier, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newClassifier(client.Models, cfg.GeminiModel, cfg.Labels, log)
}

func newClassifier(gen contentGenerator, model string, labels []string, log *slog.Logger) (*Classifier, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	normalized := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		normalized = append(normalized, l)
	}
	if len(normalized) == 0 {
		return nil, ErrNoLabels
	}
	if log == nil {
		log = slog.Default()
	}

	return &Classifier{
		generator: gen,
		model:     model,
		labels:    normalized,
		logger:    log.With("component", "gemini_classifier", "model", model),
	}, nil
}

// Predict asks the model for one label per text.
func (c *Classifier) Predict(ctx context.Context, texts []string) ([]domain.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	prompt, err := buildPrompt(c.labels, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrPermanentBackend, err)
	}

	resp, err := c.generator.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		log.Warn("Gemini API call failed", "error", redact.Error(err))
		return nil, classifyError(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrPermanentBackend, err)
	}

	predictions, err := c.parseResponse(text, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrPermanentBackend, err)
	}

	log.Debug("Gemini classification finished", "texts", len(texts))
	return predictions, nil
}

// ModelsInfo reports the configured label set.
func (c *Classifier) ModelsInfo(ctx context.Context) (*task.ModelsInfo, error) {
	classes := make([]task.ClassInfo, len(c.labels))
	for i, l := range c.labels {
		classes[i] = task.ClassInfo{ID: i, Name: l}
	}
	return &task.ModelsInfo{
		ModelAvailable: true,
		NumClasses:     len(classes),
		Classes:        classes,
	}, nil
}

// responseText extracts the text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", ErrInvalidResponse)
	case len(resp.Candidates) == 0 || resp.Candidates[0] == nil:
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", ErrContentBlocked
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return b.String(), nil
}

// parseResponse maps the model's JSON onto predictions in input order.
func (c *Classifier) parseResponse(raw string, texts []string) ([]domain.Prediction, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	if len(parsed.Predictions) != len(texts) {
		return nil, fmt.Errorf("%w: got %d predictions for %d texts",
			ErrInvalidResponse, len(parsed.Predictions), len(texts))
	}

	out := make([]domain.Prediction, len(texts))
	filled := make([]bool, len(texts))
	for _, p := range parsed.Predictions {
		if p.Index < 0 || p.Index >= len(texts) || filled[p.Index] {
			return nil, fmt.Errorf("%w: bad or repeated index %d", ErrInvalidResponse, p.Index)
		}

		label := strings.ToLower(strings.TrimSpace(p.Label))
		labelID := c.labelID(label)
		if labelID < 0 {
			return nil, fmt.Errorf("%w: unknown label %q", ErrInvalidResponse, p.Label)
		}

		confidence := clamp(p.Confidence)
		out[p.Index] = domain.Prediction{
			Text:          texts[p.Index],
			Label:         label,
			LabelID:       labelID,
			Confidence:    confidence,
			Probabilities: c.probabilities(label, confidence),
		}
		filled[p.Index] = true
	}
	return out, nil
}

func (c *Classifier) labelID(label string) int {
	for i, l := range c.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// probabilities gives the chosen label its confidence and spreads the rest
// evenly over the other labels.
func (c *Classifier) probabilities(label string, confidence float64) map[string]float64 {
	probs := make(map[string]float64, len(c.labels))
	rest := 0.0
	if len(c.labels) > 1 {
		rest = (1 - confidence) / float64(len(c.labels)-1)
	}
	for _, l := range c.labels {
		if l == label {
			probs[l] = confidence
		} else {
			probs[l] = rest
		}
	}
	return probs
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// classifyError maps a genai call failure onto the backend error kinds.
// Rate limits, server errors and network failures are transient; anything
// else is permanent.
func classifyError(err error) error {
	if code, ok := apiErrorCode(err); ok {
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: gemini API status %d: %v", task.ErrTransientBackend, code, err)
		}
		return fmt.Errorf("%w: gemini API status %d: %v", task.ErrPermanentBackend, code, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", task.ErrTransientBackend, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", task.ErrPermanentBackend, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

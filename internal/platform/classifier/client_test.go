package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("  ", nil)
	assert.Error(t, err)
}

func TestPredict_Success(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"buy now", "hello"}, req.Texts)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[
			{"text":"buy now","label":"spam","label_id":1,"confidence":0.93,"probabilities":{"ham":0.07,"spam":0.93}},
			{"text":"hello","label":"ham","label_id":0,"confidence":0.88}
		]}`))
	})

	got, err := c.Predict(context.Background(), []string{"buy now", "hello"})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Prediction{
		Text: "buy now", Label: "spam", LabelID: 1, Confidence: 0.93,
		Probabilities: map[string]float64{"ham": 0.07, "spam": 0.93},
	}, got[0])
	assert.Equal(t, "ham", got[1].Label)
	assert.Nil(t, got[1].Probabilities)
}

func TestPredict_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"Model not available"}`, tt.status)
			})

			_, err := c.Predict(context.Background(), []string{"x"})

			require.Error(t, err)
			assert.Equal(t, tt.transient, task.IsTransient(err))
			assert.Equal(t, tt.transient, errors.Is(err, task.ErrTransientBackend))
			assert.Equal(t, !tt.transient, errors.Is(err, task.ErrPermanentBackend))

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Contains(t, se.Body, "Model not available")
		})
	}
}

func TestPredict_InvalidBodyIsPermanent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	_, err := c.Predict(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, task.ErrPermanentBackend)
	assert.False(t, task.IsTransient(err))
}

func TestPredict_ConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, nil)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, task.ErrTransientBackend)
}

func TestPredict_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Predict(ctx, []string{"x"})
	assert.True(t, task.IsTransient(err))
}

func TestPredict_TimeoutDuringBodyReadIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"predictions": [`))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Predict(ctx, []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrTransientBackend)
	assert.NotErrorIs(t, err, task.ErrPermanentBackend)
	assert.True(t, task.IsTransient(err))
}

func TestModelsInfo(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"model_available":true,"num_classes":2,"classes":[{"id":0,"name":"ham"},{"id":1,"name":"spam"}]}`))
	})

	info, err := c.ModelsInfo(context.Background())

	require.NoError(t, err)
	assert.True(t, info.ModelAvailable)
	assert.Equal(t, 2, info.NumClasses)
	assert.Equal(t, []task.ClassInfo{{ID: 0, Name: "ham"}, {ID: 1, Name: "spam"}}, info.Classes)
}

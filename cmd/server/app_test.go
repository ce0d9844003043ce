package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/moderation-api/internal/auth"
	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClassifierService labels any text containing "free" as spam.
func fakeClassifierService(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		preds := make([]map[string]interface{}, len(req.Texts))
		for i, text := range req.Texts {
			label, id := "ham", 0
			if strings.Contains(strings.ToLower(text), "free") {
				label, id = "spam", 1
			}
			preds[i] = map[string]interface{}{
				"text": text, "label": label, "label_id": id, "confidence": 0.9,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"predictions": preds})
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w,
			`{"model_available":true,"num_classes":2,"classes":[{"id":0,"name":"ham"},{"id":1,"name":"spam"}]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(classifierURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			ShutdownTimeout: 5 * time.Second,
			Version:         "test",
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Queue:    config.QueueConfig{Driver: "memory", Name: "classification", Size: 10, PollTimeout: time.Second},
		Worker: config.WorkerConfig{
			Count:          2,
			CallTimeout:    5 * time.Second,
			MaxAttempts:    2,
			BaseDelay:      10 * time.Millisecond,
			MaxDelay:       10 * time.Millisecond,
			RecoverOnStart: true,
			SweepSchedule:  "@every 5m",
			SweepBatchSize: 10,
		},
		Classifier: config.ClassifierConfig{Backend: "http", URL: classifierURL},
		API:        config.APIConfig{MaxBatchSize: 10, MaxTextLength: 100, MaxListLimit: 50},
	}
}

// startApp serves app on a random port and returns its base URL and a stop
// function that waits for shutdown.
func startApp(t *testing.T, cfg *config.Config, role string) (string, func()) {
	t.Helper()

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	app, err := newApplication(ctx, cfg, role, lg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.serveListener(ctx, ln) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("application did not shut down")
		}
	}
	return "http://" + ln.Addr().String(), stop
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestApplication_SubmitAndClassify(t *testing.T) {
	classifierSrv := fakeClassifierService(t)
	baseURL, stop := startApp(t, testConfig(classifierSrv.URL), roleAll)
	defer stop()

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/v1/tasks", "",
		`{"texts": ["Claim your FREE prize", "lunch at noon?"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var submitted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &submitted))
	assert.Equal(t, "pending", submitted.Status)

	var got struct {
		Status string `json:"status"`
		Result []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"result"`
		Error *string `json:"error"`
	}
	require.Eventually(t, func() bool {
		resp, body := doRequest(t, http.MethodGet, baseURL+"/api/v1/tasks/"+submitted.ID, "", "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(body, &got); err != nil {
			return false
		}
		return got.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, got.Result, 2)
	assert.Equal(t, "spam", got.Result[0].Label)
	assert.Equal(t, "ham", got.Result[1].Label)
	assert.Nil(t, got.Error)

	resp, body = doRequest(t, http.MethodGet, baseURL+"/api/v1/tasks?limit=5", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), submitted.ID)

	resp, body = doRequest(t, http.MethodGet, baseURL+"/api/v1/models", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"num_classes":2`)

	resp, body = doRequest(t, http.MethodGet, baseURL+"/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"OK","version":"test"}`, string(body))
}

func TestApplication_RequiresTokenWhenSecretSet(t *testing.T) {
	const secret = "integration-secret-that-is-32-chars-long"

	classifierSrv := fakeClassifierService(t)
	cfg := testConfig(classifierSrv.URL)
	cfg.Auth.JWTSecret = secret
	baseURL, stop := startApp(t, cfg, roleAll)
	defer stop()

	resp, _ := doRequest(t, http.MethodGet, baseURL+"/api/v1/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.SignForTesting(secret, "client-1", "access", time.Now(), time.Hour)
	require.NoError(t, err)
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/api/v1/tasks", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, baseURL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")
}

func TestApplication_BackendFailureMarksTaskFailed(t *testing.T) {
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	baseURL, stop := startApp(t, testConfig(unavailable.URL), roleAll)
	defer stop()

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/v1/tasks", "", `{"texts": ["hello"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &submitted))

	var got struct {
		Status string  `json:"status"`
		Error  *string `json:"error"`
	}
	require.Eventually(t, func() bool {
		_, body := doRequest(t, http.MethodGet, fmt.Sprintf("%s/api/v1/tasks/%s", baseURL, submitted.ID), "", "")
		return json.Unmarshal(body, &got) == nil && got.Status == "failed"
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "503")
}

func TestApplication_WorkerRoleServesOnlyHealth(t *testing.T) {
	classifierSrv := fakeClassifierService(t)
	cfg := testConfig(classifierSrv.URL)

	// The memory drivers are rejected by checkRole before this point in
	// production; here they stand in for shared infrastructure.
	baseURL, stop := startApp(t, cfg, roleWorker)
	defer stop()

	resp, _ := doRequest(t, http.MethodGet, baseURL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, baseURL+"/api/v1/tasks", "", `{"texts": ["hello"]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

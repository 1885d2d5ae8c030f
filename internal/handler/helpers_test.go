package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Vinay94278/postmate/internal/middleware"
	"github.com/Vinay94278/postmate/internal/model"
)

// --- モック定義 ---

// mockCredentialRepo はCredentialRepositoryのモック実装。
type mockCredentialRepo struct {
	findFn   func(ctx context.Context, userID string) (*model.StoredCredentials, error)
	upsertFn func(ctx context.Context, userID string, set model.CredentialSet) error
}

func (m *mockCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.StoredCredentials, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCredentialRepo) Upsert(ctx context.Context, userID string, set model.CredentialSet) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, set)
	}
	return nil
}

// mockGenerator はGeneratorのモック実装。
type mockGenerator struct {
	runFn func(ctx context.Context, topic string, creds model.CredentialSet) (model.GenerationResult, error)
}

func (m *mockGenerator) Run(ctx context.Context, topic string, creds model.CredentialSet) (model.GenerationResult, error) {
	if m.runFn != nil {
		return m.runFn(ctx, topic, creds)
	}
	return model.GenerationResult{}, nil
}

// mockMetrics はMetricsCollectorのモック実装。記録された値を保持する。
type mockMetrics struct {
	mu          sync.Mutex
	generations []string
	credOps     []string
	statuses    []int
	rateLimited []string
}

func (m *mockMetrics) RecordGeneration(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations = append(m.generations, outcome)
}

func (m *mockMetrics) RecordPhaseLatency(string, time.Duration) {}

func (m *mockMetrics) RecordCredentialOperation(op string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "success"
	if !success {
		result = "failure"
	}
	m.credOps = append(m.credOps, op+":"+result)
}

func (m *mockMetrics) RecordHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockMetrics) RecordRateLimited(limitType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = append(m.rateLimited, limitType)
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// parseErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func storedWith(userID, primary, secondary string) *model.StoredCredentials {
	return &model.StoredCredentials{
		UserID: userID,
		Set:    model.CredentialSet{PrimaryKey: primary, SecondaryKey: secondary},
	}
}

package workflow

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/Vinay94278/postmate/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// intentRecorder は要求されたNavigationIntentを記録するIntentSink。
type intentRecorder struct {
	mu      sync.Mutex
	intents []model.NavigationIntent
}

func (r *intentRecorder) Navigate(intent model.NavigationIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
}

func (r *intentRecorder) count(intent model.NavigationIntent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, i := range r.intents {
		if i == intent {
			n++
		}
	}
	return n
}

func (r *intentRecorder) all() []model.NavigationIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NavigationIntent, len(r.intents))
	copy(out, r.intents)
	return out
}

// stateRecorder はAccessObserverへの通知を記録する。
type stateRecorder struct {
	mu     sync.Mutex
	states []model.AccessState
}

func (r *stateRecorder) observe(state model.AccessState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) all() []model.AccessState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AccessState, len(r.states))
	copy(out, r.states)
	return out
}

// mockCredentialService はcredential.Serviceのモック。
type mockCredentialService struct {
	mu      sync.Mutex
	fetchFn func(ctx context.Context, userID string) (model.CredentialSet, error)
	saveFn  func(ctx context.Context, userID string, set model.CredentialSet) error
	fetches int
	saves   int
}

func (m *mockCredentialService) Fetch(ctx context.Context, userID string) (model.CredentialSet, error) {
	m.mu.Lock()
	m.fetches++
	fn := m.fetchFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, userID)
	}
	return model.CredentialSet{}, nil
}

func (m *mockCredentialService) Save(ctx context.Context, userID string, set model.CredentialSet) error {
	m.mu.Lock()
	m.saves++
	fn := m.saveFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, userID, set)
	}
	return nil
}

// mockGenerationService はgeneration.Serviceのモック。
type mockGenerationService struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error)
	requests   []model.GenerationRequest
}

func (m *mockGenerationService) Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.generateFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return model.GenerationResult{}, nil
}

func (m *mockGenerationService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// fakeGate はテストから状態と通知を制御できるGate。
type fakeGate struct {
	mu        sync.Mutex
	identity  *model.Identity
	state     model.AccessState
	observers []AccessObserver
}

func newFakeGate(state model.AccessState) *fakeGate {
	g := &fakeGate{state: state}
	if state != model.AccessUnauthenticated {
		g.identity = &model.Identity{ID: "u1"}
	}
	return g
}

func (g *fakeGate) Session() (*model.Identity, model.AccessState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.identity == nil {
		return nil, g.state
	}
	id := *g.identity
	return &id, g.state
}

func (g *fakeGate) OnAccessChange(observer AccessObserver) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, observer)
	return func() {}
}

// signOut はサインアウトを模倣して観測者に通知する。
func (g *fakeGate) signOut() {
	g.mu.Lock()
	g.identity = nil
	g.state = model.AccessUnauthenticated
	observers := append([]AccessObserver(nil), g.observers...)
	g.mu.Unlock()

	for _, o := range observers {
		o(model.AccessUnauthenticated)
	}
}

// switchIdentity は通知なしでアイデンティティを切り替える。
// AuthGateは別ユーザーへのサインイン時、読み込み完了まで観測者に通知しない。
func (g *fakeGate) switchIdentity(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identity = &model.Identity{ID: id}
}

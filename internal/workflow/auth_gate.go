package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Vinay94278/postmate/internal/identity"
	"github.com/Vinay94278/postmate/internal/model"
)

// defaultLoadTimeout はクレデンシャル読み込みのデフォルトタイムアウト。
const defaultLoadTimeout = 15 * time.Second

// CredentialStore はAuthGateが使うクレデンシャルキャッシュのインターフェース。
type CredentialStore interface {
	Load(ctx context.Context, identity model.Identity) (model.CredentialSet, error)
	Save(ctx context.Context, identity model.Identity, set model.CredentialSet) error
	Cached(identity model.Identity) (model.CredentialSet, bool)
	Clear()
}

// AccessObserver はAccessStateの再計算を受け取る関数。
type AccessObserver func(state model.AccessState)

// AuthGate はセッション変化を購読し、アイデンティティとCredentialSetから
// AccessStateを導出する。状態は外部にはAccessStateの射影としてのみ公開する。
type AuthGate struct {
	provider    identity.Provider
	store       CredentialStore
	nav         IntentSink
	logger      *slog.Logger
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu は観測者への通知順序を状態変化の順序に揃える。
	notifyMu sync.Mutex

	mu          sync.Mutex
	identity    *model.Identity
	creds       model.CredentialSet
	epoch       uint64
	observers   map[int]AccessObserver
	nextID      int
	unsubscribe func()
	loads       sync.WaitGroup
}

// NewAuthGate はAuthGateを生成する。購読はStartで開始する。
// loadTimeoutが0以下の場合はデフォルト値を使う。
func NewAuthGate(provider identity.Provider, store CredentialStore, nav IntentSink, logger *slog.Logger, loadTimeout time.Duration) *AuthGate {
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AuthGate{
		provider:    provider,
		store:       store,
		nav:         nav,
		logger:      logger,
		loadTimeout: loadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		observers:   make(map[int]AccessObserver),
	}
}

// Start はアイデンティティプロバイダーの購読を開始する。
// プロバイダーは現在のアイデンティティを直ちに通知する。
func (g *AuthGate) Start() {
	g.mu.Lock()
	if g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	unsubscribe := g.provider.Subscribe(g.handleIdentity)

	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()
}

// Close は購読を解除し、読み込み中の結果を破棄する。
func (g *AuthGate) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.epoch++
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	g.cancel()
	g.loads.Wait()
}

// Wait は実行中のクレデンシャル読み込みがすべて終わるまで待つ。
func (g *AuthGate) Wait() {
	g.loads.Wait()
}

// State は現在のAccessStateを返す。
func (g *AuthGate) State() model.AccessState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.DeriveAccessState(g.identity, g.creds)
}

// Session は現在のアイデンティティとAccessStateを返す。
// アイデンティティはコピーで、サインアウト状態ではnil。
func (g *AuthGate) Session() (*model.Identity, model.AccessState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := model.DeriveAccessState(g.identity, g.creds)
	if g.identity == nil {
		return nil, state
	}
	id := *g.identity
	return &id, state
}

// OnAccessChange は観測者を登録する。戻り値の関数で登録を解除する。
func (g *AuthGate) OnAccessChange(observer AccessObserver) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.observers[id] = observer
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.observers, id)
			g.mu.Unlock()
		})
	}
}

// SaveCredentials はCredentialSetを保存し、再読み込みの完了後にAccessStateを再計算する。
// readyになった場合はメイン画面への遷移を要求する。
// 失敗した場合は状態を変更せずエラーを返す。
func (g *AuthGate) SaveCredentials(ctx context.Context, set model.CredentialSet) error {
	g.mu.Lock()
	if g.identity == nil {
		g.mu.Unlock()
		g.nav.Navigate(model.NavigateLogin)
		return model.NewAuthRequiredError()
	}
	who := *g.identity
	epoch := g.epoch
	g.mu.Unlock()

	if err := g.store.Save(ctx, who, set); err != nil {
		g.logger.Warn("failed to save credentials",
			slog.String("user_id", who.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	creds, _ := g.store.Cached(who)

	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		g.logger.Info("session changed while saving credentials",
			slog.String("user_id", who.ID),
		)
		return nil
	}
	g.creds = creds
	state := model.DeriveAccessState(g.identity, g.creds)
	observers := g.observerList()
	g.mu.Unlock()

	g.notify(observers, state)

	if state == model.AccessReady {
		g.nav.Navigate(model.NavigateMain)
	} else {
		g.nav.Navigate(model.NavigateCredentials)
	}
	return nil
}

// handleIdentity はプロバイダーからの通知を処理する。
func (g *AuthGate) handleIdentity(who *model.Identity) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	g.epoch++
	epoch := g.epoch
	g.creds = model.CredentialSet{}

	// 1. サインアウト: 状態を消去してログインへ誘導
	if who == nil {
		g.identity = nil
		observers := g.observerList()
		g.mu.Unlock()

		g.store.Clear()
		g.notify(observers, model.AccessUnauthenticated)
		g.nav.Navigate(model.NavigateLogin)
		return
	}

	// 2. サインイン: 読み込みが終わるまでreadyにはならない
	id := *who
	g.identity = &id
	g.loads.Add(1)
	g.mu.Unlock()

	go g.load(id, epoch)
}

// load はクレデンシャルを読み込み、セッションが変わっていなければ状態に反映する。
func (g *AuthGate) load(who model.Identity, epoch uint64) {
	defer g.loads.Done()

	ctx, cancel := context.WithTimeout(g.ctx, g.loadTimeout)
	defer cancel()

	creds, err := g.store.Load(ctx, who)

	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if g.epoch != epoch {
		signedOut := g.identity == nil
		g.mu.Unlock()
		g.logger.Debug("dropping stale credential load", slog.String("user_id", who.ID))
		if signedOut {
			// 読み込みがサインアウト後のClearを上書きしている
			g.store.Clear()
		}
		return
	}
	if err != nil {
		// 読み込み失敗はmissingCredentialsとして扱う
		creds = model.CredentialSet{}
	}
	g.creds = creds
	state := model.DeriveAccessState(g.identity, g.creds)
	observers := g.observerList()
	g.mu.Unlock()

	if err != nil {
		g.logger.Warn("failed to load credentials",
			slog.String("user_id", who.ID),
			slog.String("error", err.Error()),
		)
	}

	g.notify(observers, state)

	// 読み込み中のSubmitでcredentialsへ誘導されていても、readyになればメインへ戻す
	if state == model.AccessReady {
		g.nav.Navigate(model.NavigateMain)
	} else {
		g.nav.Navigate(model.NavigateCredentials)
	}
}

// observerList は観測者のスナップショットを返す。g.muを保持して呼ぶこと。
func (g *AuthGate) observerList() []AccessObserver {
	out := make([]AccessObserver, 0, len(g.observers))
	for _, o := range g.observers {
		out = append(out, o)
	}
	return out
}

func (g *AuthGate) notify(observers []AccessObserver, state model.AccessState) {
	for _, o := range observers {
		o(state)
	}
}

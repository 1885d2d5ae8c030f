package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vinay94278/postmate/internal/generation"
	"github.com/Vinay94278/postmate/internal/model"
	"github.com/Vinay94278/postmate/internal/security"
)

// defaultRequestTimeout は生成リクエストのデフォルトタイムアウト。
// 調査と投稿作成の2段階のため長めに取る。
const defaultRequestTimeout = 3 * time.Minute

// Phase は生成ワークフローの段階を表す。
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePending Phase = "pending"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

// Gate はOrchestratorから見たAuthGateのインターフェース。
type Gate interface {
	Session() (*model.Identity, model.AccessState)
	OnAccessChange(observer AccessObserver) (remove func())
}

// Snapshot はOrchestratorの状態のコピー。
type Snapshot struct {
	Phase   Phase
	View    model.ViewState
	Result  *model.GenerationResult
	Err     error
	Request *model.GenerationRequest
}

// Orchestrator は生成ワークフローの状態機械。
// 実行中のリクエストは常に高々1件で、Pending中のSubmitは無視される。
type Orchestrator struct {
	gate      Gate
	service   generation.Service
	sanitizer security.ContentSanitizerService
	nav       IntentSink
	logger    *slog.Logger
	timeout   time.Duration
	newID     func() string

	mu            sync.Mutex
	phase         Phase
	view          model.ViewState
	result        *model.GenerationResult
	err           error
	request       *model.GenerationRequest
	owner         string // request/result/errを所有するアイデンティティのID
	epoch         uint64
	cancelRequest context.CancelFunc
	inflight      sync.WaitGroup
	removeObs     func()
}

// NewOrchestrator はIdle(form)状態のOrchestratorを生成し、gateのAccessStateを購読する。
// timeoutが0以下の場合はデフォルト値を使う。
func NewOrchestrator(
	gate Gate,
	service generation.Service,
	sanitizer security.ContentSanitizerService,
	nav IntentSink,
	logger *slog.Logger,
	timeout time.Duration,
) *Orchestrator {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	o := &Orchestrator{
		gate:      gate,
		service:   service,
		sanitizer: sanitizer,
		nav:       nav,
		logger:    logger,
		timeout:   timeout,
		newID:     uuid.NewString,
		phase:     PhaseIdle,
		view:      model.ViewForm,
	}
	o.removeObs = gate.OnAccessChange(o.handleAccessChange)
	return o
}

// Submit はトピックの生成リクエストを発行する。
// Pending中は何もせずnilを返す。AccessStateがreadyでない場合は
// 遷移先を要求したうえでAuthRequiredまたはCredentialsMissingを返す。
// 空のトピックはInvalidInputを返し、状態は変わらない。
func (o *Orchestrator) Submit(topic string) error {
	o.mu.Lock()

	// 1. 別のアイデンティティの状態は引き継がない
	who, state := o.gate.Session()
	o.resetIfOwnerChangedLocked(who)

	// 2. 実行中のリクエストがあれば無視
	if o.phase == PhasePending {
		o.mu.Unlock()
		return nil
	}

	// 3. アクセス状態のチェック
	switch state {
	case model.AccessUnauthenticated:
		o.mu.Unlock()
		o.nav.Navigate(model.NavigateLogin)
		return model.NewAuthRequiredError()
	case model.AccessMissingCredentials:
		o.mu.Unlock()
		o.nav.Navigate(model.NavigateCredentials)
		return model.NewCredentialsMissingError()
	}

	// 4. トピックのチェック
	topic = strings.TrimSpace(topic)
	if topic == "" {
		o.mu.Unlock()
		return model.NewInvalidInputError("topic", "must not be empty")
	}

	// 5. リクエスト発行
	req := model.GenerationRequest{
		ID:       o.newID(),
		Identity: *who,
		Topic:    topic,
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)

	o.phase = PhasePending
	o.err = nil
	o.request = &req
	o.owner = who.ID
	o.cancelRequest = cancel
	epoch := o.epoch
	o.inflight.Add(1)
	o.mu.Unlock()

	o.logger.Info("generation request issued",
		slog.String("request_id", req.ID),
		slog.String("user_id", req.Identity.ID),
	)

	go o.run(ctx, cancel, req, epoch)
	return nil
}

// run はリクエストを実行し、結果を状態機械に反映する。
// サインアウト後、または別のアイデンティティに切り替わった後に届いた結果は破棄する。
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, req model.GenerationRequest, epoch uint64) {
	defer o.inflight.Done()
	defer cancel()

	result, err := o.service.Generate(ctx, req)

	who, _ := o.gate.Session()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch == epoch {
		o.resetIfOwnerChangedLocked(who)
	}
	if o.epoch != epoch {
		stale := model.NewStaleSessionError(req.ID)
		o.logger.Info("discarding generation response", slog.String("error", stale.Error()))
		return
	}

	o.request = nil
	o.cancelRequest = nil

	if err != nil {
		if model.KindOf(err) == "" {
			err = model.NewRequestFailedError(err.Error())
		}
		o.phase = PhaseFailed
		o.err = err
		o.logger.Warn("generation request failed",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	sanitized := model.GenerationResult{
		ResearchSummary:       o.sanitizer.Sanitize(result.ResearchSummary),
		PrimaryPlatformPost:   o.sanitizer.Sanitize(result.PrimaryPlatformPost),
		SecondaryPlatformPost: o.sanitizer.Sanitize(result.SecondaryPlatformPost),
	}
	o.phase = PhaseSuccess
	o.view = model.ViewPreview
	o.result = &sanitized
	o.err = nil
	o.logger.Info("generation request succeeded", slog.String("request_id", req.ID))
}

// SelectTab は表示するタブを切り替える。
// researchとpreviewは結果がある場合のみ選択できる。
func (o *Orchestrator) SelectTab(name string) error {
	view, ok := model.ParseViewState(name)
	if !ok {
		return model.NewInvalidInputError("tab", "unknown tab "+name)
	}

	who, _ := o.gate.Session()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.resetIfOwnerChangedLocked(who)
	if view != model.ViewForm && (o.phase != PhaseSuccess || o.result == nil) {
		return model.NewInvalidInputError("tab", "no generated content to show")
	}
	o.view = view
	return nil
}

// DismissError は一時的なエラーメッセージを閉じ、Idle(form)に戻す。
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseFailed {
		return
	}
	o.phase = PhaseIdle
	o.view = model.ViewForm
	o.err = nil
}

// Snapshot は現在の状態のコピーを返す。
// 現在のアイデンティティ以外が所有する結果は返さない。
func (o *Orchestrator) Snapshot() Snapshot {
	who, _ := o.gate.Session()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.resetIfOwnerChangedLocked(who)

	s := Snapshot{
		Phase: o.phase,
		View:  o.view,
		Err:   o.err,
	}
	if o.result != nil {
		r := *o.result
		s.Result = &r
	}
	if o.request != nil {
		r := *o.request
		s.Request = &r
	}
	return s
}

// Wait は実行中のリクエストが終わるまで待つ。
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Close はAccessStateの購読を解除し、実行中のリクエストを中断する。
func (o *Orchestrator) Close() {
	o.removeObs()

	o.mu.Lock()
	o.epoch++
	if o.cancelRequest != nil {
		o.cancelRequest()
		o.cancelRequest = nil
	}
	o.mu.Unlock()

	o.inflight.Wait()
}

// handleAccessChange はサインアウトとアイデンティティの切り替えを検知して状態を初期化する。
// 実行中のリクエストの結果は以後破棄される。
func (o *Orchestrator) handleAccessChange(state model.AccessState) {
	who, _ := o.gate.Session()

	o.mu.Lock()
	defer o.mu.Unlock()

	if state == model.AccessUnauthenticated {
		o.resetLocked("sign-out")
		return
	}
	o.resetIfOwnerChangedLocked(who)
}

// resetIfOwnerChangedLocked は状態の所有者がwhoと異なる場合にIdle(form)へ戻す。
// o.muを保持して呼ぶこと。
func (o *Orchestrator) resetIfOwnerChangedLocked(who *model.Identity) {
	if o.owner == "" {
		return
	}
	if who != nil && who.ID == o.owner {
		return
	}
	o.resetLocked("identity change")
}

// resetLocked は実行中のリクエストを中断し、結果とエラーを捨ててIdle(form)へ戻す。
// o.muを保持して呼ぶこと。
func (o *Orchestrator) resetLocked(reason string) {
	o.epoch++
	if o.cancelRequest != nil {
		o.cancelRequest()
		o.cancelRequest = nil
	}
	if o.request != nil {
		o.logger.Info("abandoning pending generation",
			slog.String("request_id", o.request.ID),
			slog.String("reason", reason),
		)
	}
	o.phase = PhaseIdle
	o.view = model.ViewForm
	o.result = nil
	o.err = nil
	o.request = nil
	o.owner = ""
}

package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Vinay94278/postmate/internal/credential"
	"github.com/Vinay94278/postmate/internal/identity"
	"github.com/Vinay94278/postmate/internal/model"
	"github.com/Vinay94278/postmate/internal/preview"
	"github.com/Vinay94278/postmate/internal/security"
)

func newTestOrchestrator(gate Gate, svc *mockGenerationService, nav IntentSink, logs *bytes.Buffer) *Orchestrator {
	o := NewOrchestrator(gate, svc, security.NewContentSanitizer(), nav, newTestLogger(logs), 0)
	seq := 0
	o.newID = func() string {
		seq++
		return fmt.Sprintf("req-%d", seq)
	}
	return o
}

func TestOrchestrator_InitialState(t *testing.T) {
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), &mockGenerationService{}, &intentRecorder{}, &buf)
	defer o.Close()

	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.View != model.ViewForm {
		t.Errorf("初期状態 = (%s, %s), want (idle, form)", s.Phase, s.View)
	}
	if s.Result != nil || s.Err != nil || s.Request != nil {
		t.Errorf("初期状態に結果・エラー・リクエストがある: %+v", s)
	}
}

func TestOrchestrator_SubmitNeverIssuesWhenNotReady(t *testing.T) {
	tests := []struct {
		name       string
		state      model.AccessState
		wantErr    error
		wantIntent model.NavigationIntent
	}{
		{"unauthenticated", model.AccessUnauthenticated, model.ErrAuthRequired, model.NavigateLogin},
		{"missing credentials", model.AccessMissingCredentials, model.ErrCredentialsMissing, model.NavigateCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			svc := &mockGenerationService{}
			nav := &intentRecorder{}
			o := newTestOrchestrator(newFakeGate(tt.state), svc, nav, &buf)
			defer o.Close()

			for _, topic := range []string{"AI trends", "", "  "} {
				err := o.Submit(topic)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Submit(%q) エラー = %v, want %v", topic, err, tt.wantErr)
				}
			}
			o.Wait()

			if svc.calls() != 0 {
				t.Errorf("GenerationRequest発行回数 = %d, want 0", svc.calls())
			}
			if nav.count(tt.wantIntent) == 0 {
				t.Errorf("%s 遷移が要求されていない", tt.wantIntent)
			}
			if s := o.Snapshot(); s.Phase != PhaseIdle || s.View != model.ViewForm {
				t.Errorf("状態 = (%s, %s), want (idle, form)", s.Phase, s.View)
			}
		})
	}
}

func TestOrchestrator_EmptyTopicIsInvalidInput(t *testing.T) {
	var buf bytes.Buffer
	svc := &mockGenerationService{}
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	err := o.Submit("   ")
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("エラー種別 = %v, want InvalidInput", err)
	}
	if svc.calls() != 0 {
		t.Errorf("GenerationRequest発行回数 = %d, want 0", svc.calls())
	}
	if s := o.Snapshot(); s.Phase != PhaseIdle {
		t.Errorf("Phase = %s, want idle", s.Phase)
	}
}

func TestOrchestrator_SubmitWhilePendingIsNoop(t *testing.T) {
	release := make(chan struct{})
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			<-release
			return model.GenerationResult{ResearchSummary: "R"}, nil
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("1回目のSubmit がエラーを返した: %v", err)
	}
	s := o.Snapshot()
	if s.Phase != PhasePending || s.Request == nil || s.Request.Topic != "AI trends" {
		t.Fatalf("状態 = %+v, want pending with request", s)
	}

	if err := o.Submit("AI trends"); err != nil {
		t.Errorf("Pending中のSubmit がエラーを返した: %v", err)
	}
	if err := o.Submit("other topic"); err != nil {
		t.Errorf("Pending中のSubmit がエラーを返した: %v", err)
	}

	close(release)
	o.Wait()

	if svc.calls() != 1 {
		t.Errorf("GenerationRequest発行回数 = %d, want 1", svc.calls())
	}
}

func TestOrchestrator_SuccessScenario(t *testing.T) {
	svc := &mockGenerationService{
		generateFn: func(_ context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
			if req.Identity.ID != "u1" {
				t.Errorf("Identity = %s, want u1", req.Identity.ID)
			}
			return model.GenerationResult{
				ResearchSummary:       "R",
				PrimaryPlatformPost:   "**P**",
				SecondaryPlatformPost: "S",
			}, nil
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("Submit がエラーを返した: %v", err)
	}
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseSuccess || s.View != model.ViewPreview {
		t.Fatalf("状態 = (%s, %s), want (success, preview)", s.Phase, s.View)
	}
	if s.Request != nil {
		t.Errorf("完了後もリクエストが残っている: %+v", s.Request)
	}

	if err := o.SelectTab("research"); err != nil {
		t.Fatalf("SelectTab(research) がエラーを返した: %v", err)
	}
	s = o.Snapshot()
	if s.View != model.ViewResearch {
		t.Errorf("View = %s, want research", s.View)
	}
	sanitizer := security.NewContentSanitizer()
	if s.Result.ResearchSummary != sanitizer.Sanitize("R") || s.Result.ResearchSummary != "R" {
		t.Errorf("ResearchSummary = %q, want R", s.Result.ResearchSummary)
	}

	r := preview.NewRenderer(security.NewPreviewHTMLPolicy())
	m := r.Render(model.PlatformLinkedIn, s.Result.PrimaryPlatformPost, "")
	if m.Body != "**P**" {
		t.Errorf("Body = %q, want **P**", m.Body)
	}
	if !strings.Contains(m.BodyHTML, "<strong>P</strong>") {
		t.Errorf("BodyHTML に太字がない: %s", m.BodyHTML)
	}
}

func TestOrchestrator_SanitizesPosts(t *testing.T) {
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{
				ResearchSummary:       "<think>plan</think>Findings",
				PrimaryPlatformPost:   "## LINKEDIN POST:\n```markdown\nHello\n```",
				SecondaryPlatformPost: "## X POST: short <think>hmm</think>post",
			}, nil
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("topic"); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	res := o.Snapshot().Result
	if res == nil {
		t.Fatal("結果がない")
	}
	if res.ResearchSummary != "Findings" {
		t.Errorf("ResearchSummary = %q, want Findings", res.ResearchSummary)
	}
	if res.PrimaryPlatformPost != "Hello" {
		t.Errorf("PrimaryPlatformPost = %q, want Hello", res.PrimaryPlatformPost)
	}
	if res.SecondaryPlatformPost != "short post" {
		t.Errorf("SecondaryPlatformPost = %q, want %q", res.SecondaryPlatformPost, "short post")
	}
}

func TestOrchestrator_FailureThenResubmit(t *testing.T) {
	fail := true
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			if fail {
				return model.GenerationResult{}, model.NewRequestFailedError("quota exceeded")
			}
			return model.GenerationResult{ResearchSummary: "R", PrimaryPlatformPost: "P", SecondaryPlatformPost: "S"}, nil
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseFailed {
		t.Fatalf("Phase = %s, want failed", s.Phase)
	}
	var apiErr *model.APIError
	if !errors.As(s.Err, &apiErr) || apiErr.Message != "quota exceeded" {
		t.Errorf("Err = %v, want quota exceeded", s.Err)
	}
	if !errors.Is(s.Err, model.ErrRequestFailed) {
		t.Errorf("エラー種別 = %v, want RequestFailed", s.Err)
	}

	fail = false
	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("再送信 がエラーを返した: %v", err)
	}
	o.Wait()

	s = o.Snapshot()
	if s.Phase != PhaseSuccess || s.Err != nil {
		t.Errorf("再送信後の状態 = (%s, %v), want (success, nil)", s.Phase, s.Err)
	}
	if svc.calls() != 2 {
		t.Errorf("GenerationRequest発行回数 = %d, want 2", svc.calls())
	}
}

func TestOrchestrator_PlainErrorBecomesRequestFailed(t *testing.T) {
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{}, errors.New("connection reset")
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("topic"); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	if err := o.Snapshot().Err; !errors.Is(err, model.ErrRequestFailed) {
		t.Errorf("エラー種別 = %v, want RequestFailed", err)
	}
}

func TestOrchestrator_DismissError(t *testing.T) {
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{}, model.NewRequestFailedError("boom")
		},
	}
	var buf bytes.Buffer
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("topic"); err != nil {
		t.Fatal(err)
	}
	o.Wait()
	o.DismissError()

	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.View != model.ViewForm || s.Err != nil {
		t.Errorf("状態 = %+v, want idle/form without error", s)
	}
}

func TestOrchestrator_SelectTab(t *testing.T) {
	var buf bytes.Buffer
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{ResearchSummary: "R"}, nil
		},
	}
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &buf)
	defer o.Close()

	// 結果がない状態
	if err := o.SelectTab("research"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("結果なしでresearch選択: エラー = %v, want InvalidInput", err)
	}
	if err := o.SelectTab("preview"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("結果なしでpreview選択: エラー = %v, want InvalidInput", err)
	}
	if err := o.SelectTab("form"); err != nil {
		t.Errorf("form選択 がエラーを返した: %v", err)
	}
	if err := o.SelectTab("settings"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("未知のタブ: エラー = %v, want InvalidInput", err)
	}

	if err := o.Submit("topic"); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	for _, name := range []string{"research", "form", "preview"} {
		if err := o.SelectTab(name); err != nil {
			t.Errorf("SelectTab(%s) がエラーを返した: %v", name, err)
		}
		s := o.Snapshot()
		if string(s.View) != name || s.Phase != PhaseSuccess {
			t.Errorf("SelectTab(%s)後の状態 = (%s, %s)", name, s.Phase, s.View)
		}
	}
}

func TestOrchestrator_LateResponseAfterSignOutDiscarded(t *testing.T) {
	release := make(chan struct{})
	svc := &mockGenerationService{
		generateFn: func(ctx context.Context, _ model.GenerationRequest) (model.GenerationResult, error) {
			<-release
			return model.GenerationResult{ResearchSummary: "R", PrimaryPlatformPost: "P", SecondaryPlatformPost: "S"}, nil
		},
	}
	gate := newFakeGate(model.AccessReady)
	var buf bytes.Buffer
	o := newTestOrchestrator(gate, svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatal(err)
	}

	gate.signOut()
	close(release)
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.View != model.ViewForm {
		t.Errorf("状態 = (%s, %s), want (idle, form)", s.Phase, s.View)
	}
	if s.Result != nil || s.Err != nil {
		t.Errorf("サインアウト後の結果が反映された: %+v", s)
	}
	if !strings.Contains(buf.String(), model.ErrCodeStaleSession) {
		t.Errorf("破棄がログに記録されていない: %s", buf.String())
	}
}

func TestOrchestrator_LateResponseAfterIdentitySwitchDiscarded(t *testing.T) {
	release := make(chan struct{})
	svc := &mockGenerationService{
		generateFn: func(_ context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
			if req.Identity.ID == "u1" {
				<-release
				return model.GenerationResult{ResearchSummary: "R-u1", PrimaryPlatformPost: "P-u1", SecondaryPlatformPost: "S-u1"}, nil
			}
			return model.GenerationResult{ResearchSummary: "R-u2", PrimaryPlatformPost: "P-u2", SecondaryPlatformPost: "S-u2"}, nil
		},
	}
	gate := newFakeGate(model.AccessReady)
	var buf bytes.Buffer
	o := newTestOrchestrator(gate, svc, &intentRecorder{}, &buf)
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatal(err)
	}

	// u1の応答が届く前にu2へ切り替わる
	gate.switchIdentity("u2")
	close(release)
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.View != model.ViewForm {
		t.Errorf("状態 = (%s, %s), want (idle, form)", s.Phase, s.View)
	}
	if s.Result != nil {
		t.Fatalf("u1の結果がu2のセッションに反映された: %+v", s.Result)
	}
	if !strings.Contains(buf.String(), model.ErrCodeStaleSession) {
		t.Errorf("破棄がログに記録されていない: %s", buf.String())
	}

	// u2は自分のリクエストを発行できる
	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("u2のSubmit がエラーを返した: %v", err)
	}
	o.Wait()

	s = o.Snapshot()
	if s.Phase != PhaseSuccess || s.Result == nil || s.Result.ResearchSummary != "R-u2" {
		t.Errorf("u2の結果 = %+v, want R-u2", s.Result)
	}
}

func TestOrchestrator_IdentitySwitchHidesPreviousResult(t *testing.T) {
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{ResearchSummary: "R", PrimaryPlatformPost: "P", SecondaryPlatformPost: "S"}, nil
		},
	}
	gate := newFakeGate(model.AccessReady)
	o := newTestOrchestrator(gate, svc, &intentRecorder{}, &bytes.Buffer{})
	defer o.Close()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	gate.switchIdentity("u2")

	if err := o.SelectTab("preview"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("SelectTab(preview) = %v, want InvalidInput", err)
	}
	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.Result != nil {
		t.Errorf("切り替え後の状態 = %+v, want idle without result", s)
	}
}

func TestOrchestrator_SubmitFromSuccessReplacesResult(t *testing.T) {
	n := 0
	svc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			n++
			return model.GenerationResult{
				ResearchSummary:       fmt.Sprintf("R%d", n),
				PrimaryPlatformPost:   fmt.Sprintf("P%d", n),
				SecondaryPlatformPost: fmt.Sprintf("S%d", n),
			}, nil
		},
	}
	o := newTestOrchestrator(newFakeGate(model.AccessReady), svc, &intentRecorder{}, &bytes.Buffer{})
	defer o.Close()

	if err := o.Submit("first"); err != nil {
		t.Fatal(err)
	}
	o.Wait()
	if err := o.SelectTab("research"); err != nil {
		t.Fatal(err)
	}

	if err := o.Submit("second"); err != nil {
		t.Fatalf("Success状態からのSubmit がエラーを返した: %v", err)
	}
	o.Wait()

	s := o.Snapshot()
	if s.Phase != PhaseSuccess || s.View != model.ViewPreview {
		t.Errorf("状態 = (%s, %s), want (success, preview)", s.Phase, s.View)
	}
	want := model.GenerationResult{ResearchSummary: "R2", PrimaryPlatformPost: "P2", SecondaryPlatformPost: "S2"}
	if s.Result == nil || *s.Result != want {
		t.Errorf("Result = %+v, want %+v", s.Result, want)
	}
	if svc.calls() != 2 {
		t.Errorf("GenerationRequest発行回数 = %d, want 2", svc.calls())
	}
}

func TestOrchestrator_WithAuthGate_IdentitySwitchDiscardsResponse(t *testing.T) {
	broker := identity.NewBroker()
	credSvc := &mockCredentialService{
		fetchFn: func(context.Context, string) (model.CredentialSet, error) {
			return model.CredentialSet{PrimaryKey: "g", SecondaryKey: "p"}, nil
		},
	}
	var logs bytes.Buffer
	nav := &intentRecorder{}
	gate := NewAuthGate(broker, credential.NewStore(credSvc), nav, newTestLogger(&logs), 0)
	gate.Start()
	defer gate.Close()

	release := make(chan struct{})
	genSvc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			<-release
			return model.GenerationResult{ResearchSummary: "alice-research", PrimaryPlatformPost: "P", SecondaryPlatformPost: "S"}, nil
		},
	}
	o := newTestOrchestrator(gate, genSvc, nav, &logs)
	defer o.Close()

	broker.SignIn("alice")
	gate.Wait()
	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("Submit がエラーを返した: %v", err)
	}

	broker.SignIn("bob")
	gate.Wait()
	close(release)
	o.Wait()

	who, state := gate.Session()
	if who == nil || who.ID != "bob" || state != model.AccessReady {
		t.Fatalf("Session = (%v, %s), want (bob, ready)", who, state)
	}
	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.Result != nil {
		t.Errorf("aliceの結果がbobのセッションに残った: %+v", s)
	}
}

func TestOrchestrator_WithAuthGate(t *testing.T) {
	broker := identity.NewBroker()
	credSvc := &mockCredentialService{
		fetchFn: func(context.Context, string) (model.CredentialSet, error) {
			return model.CredentialSet{PrimaryKey: "g", SecondaryKey: "p"}, nil
		},
	}
	var logs bytes.Buffer
	nav := &intentRecorder{}
	gate := NewAuthGate(broker, credential.NewStore(credSvc), nav, newTestLogger(&logs), 0)
	gate.Start()
	defer gate.Close()

	genSvc := &mockGenerationService{
		generateFn: func(context.Context, model.GenerationRequest) (model.GenerationResult, error) {
			return model.GenerationResult{ResearchSummary: "R", PrimaryPlatformPost: "P", SecondaryPlatformPost: "S"}, nil
		},
	}
	o := newTestOrchestrator(gate, genSvc, nav, &logs)
	defer o.Close()

	if err := o.Submit("AI trends"); !errors.Is(err, model.ErrAuthRequired) {
		t.Errorf("サインイン前: エラー = %v, want AuthRequired", err)
	}

	broker.SignIn("u1")
	gate.Wait()

	if err := o.Submit("AI trends"); err != nil {
		t.Fatalf("サインイン後のSubmit がエラーを返した: %v", err)
	}
	o.Wait()
	if s := o.Snapshot(); s.Phase != PhaseSuccess {
		t.Fatalf("Phase = %s, want success", s.Phase)
	}

	broker.SignOut()

	s := o.Snapshot()
	if s.Phase != PhaseIdle || s.Result != nil {
		t.Errorf("サインアウト後の状態 = %+v, want idle without result", s)
	}
	if genSvc.calls() != 1 {
		t.Errorf("GenerationRequest発行回数 = %d, want 1", genSvc.calls())
	}
}

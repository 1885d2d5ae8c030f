package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/Vinay94278/postmate/internal/config"
	"github.com/Vinay94278/postmate/internal/credential"
	"github.com/Vinay94278/postmate/internal/generation"
	"github.com/Vinay94278/postmate/internal/identity"
	"github.com/Vinay94278/postmate/internal/logger"
	"github.com/Vinay94278/postmate/internal/model"
	"github.com/Vinay94278/postmate/internal/preview"
	"github.com/Vinay94278/postmate/internal/security"
	"github.com/Vinay94278/postmate/internal/workflow"
)

// keysコマンドで引数を省略した場合に読む環境変数。
const (
	envPrimaryKey   = "POSTMATE_GROQ_API_KEY"
	envSecondaryKey = "POSTMATE_AGNO_API_KEY"
)

// errUsage はコマンドの引数不足を表す。
var errUsage = errors.New("usage")

// clientSession はクライアントコマンド1回分のワイヤリング。
// セッションファイルのアイデンティティをAuthGateに流し、遷移要求をoutに書き出す。
type clientSession struct {
	cfg      *config.ClientConfig
	log      *slog.Logger
	out      io.Writer
	provider *identity.FileProvider
	gate     *workflow.AuthGate
	nav      *workflow.Navigator
}

// runClient はクライアントコマンドを実行する。
func runClient(ctx context.Context, cmd Command, args []string, out, logOut io.Writer) error {
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load client config: %w", err)
	}
	log := logger.Setup(logOut, cfg.LogLevel)

	switch cmd {
	case CommandLogin:
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("%w: postmate login <user-id>", errUsage)
		}
		if err := identity.WriteSession(cfg.SessionPath, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Signed in as %s\n", strings.TrimSpace(args[0]))
		return reportAccess(ctx, cfg, log, out)

	case CommandLogout:
		if err := identity.RemoveSession(cfg.SessionPath); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed out")
		return nil

	case CommandKeys:
		set, err := keysFromArgs(args)
		if err != nil {
			return err
		}
		return runKeys(ctx, cfg, log, out, set)

	case CommandGenerate:
		topic := strings.TrimSpace(strings.Join(args, " "))
		return runGenerate(ctx, cfg, log, out, topic)

	default:
		return fmt.Errorf("unknown client command %q", cmd)
	}
}

// openClientSession はFileProviderとAuthGateを起動し、最初のクレデンシャル読み込みを待つ。
func openClientSession(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger, out io.Writer) (*clientSession, error) {
	provider, err := identity.NewFileProvider(cfg.SessionPath, log)
	if err != nil {
		return nil, err
	}

	nav := workflow.NewNavigator(func(intent model.NavigationIntent) {
		fmt.Fprintf(out, "next: %s\n", describeIntent(intent))
	}, log)

	credClient := credential.NewHTTPClient(&http.Client{Timeout: cfg.CredentialLoadTimeout}, cfg.APIBaseURL, log)
	store := credential.NewStore(credClient)
	gate := workflow.NewAuthGate(provider, store, nav, log, cfg.CredentialLoadTimeout)
	gate.Start()

	waitDone := make(chan struct{})
	go func() {
		gate.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		gate.Close()
		provider.Close()
		return nil, ctx.Err()
	}

	return &clientSession{
		cfg:      cfg,
		log:      log,
		out:      out,
		provider: provider,
		gate:     gate,
		nav:      nav,
	}, nil
}

func (s *clientSession) Close() {
	s.gate.Close()
	if err := s.provider.Close(); err != nil {
		s.log.Warn("failed to close identity provider", slog.String("error", err.Error()))
	}
}

// reportAccess は現在のAccessStateを表示する。
func reportAccess(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger, out io.Writer) error {
	s, err := openClientSession(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "access: %s\n", s.gate.State())
	return nil
}

// runKeys はCredentialSetを保存し、読み直した結果のAccessStateを表示する。
func runKeys(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger, out io.Writer, set model.CredentialSet) error {
	s, err := openClientSession(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer s.Close()

	saveCtx, cancel := context.WithTimeout(ctx, cfg.CredentialLoadTimeout)
	defer cancel()

	if err := s.gate.SaveCredentials(saveCtx, set); err != nil {
		return err
	}
	fmt.Fprintln(out, "API keys saved")
	fmt.Fprintf(out, "access: %s\n", s.gate.State())
	return nil
}

// runGenerate はゲートを通して生成を1回実行し、リサーチ結果と両SNSのプレビューを表示する。
func runGenerate(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger, out io.Writer, topic string) error {
	s, err := openClientSession(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer s.Close()

	genClient := generation.NewClient(&http.Client{}, cfg.APIBaseURL, log)
	orch := workflow.NewOrchestrator(s.gate, genClient, security.NewContentSanitizer(), s.nav, log, cfg.GenerateTimeout)
	defer orch.Close()

	if err := orch.Submit(topic); err != nil {
		return err
	}

	// シグナル受信時は実行中のリクエストを中断する
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		orch.Close()
		<-done
		return ctx.Err()
	}

	snap := orch.Snapshot()
	switch snap.Phase {
	case workflow.PhaseFailed:
		return snap.Err
	case workflow.PhaseSuccess:
	default:
		// 実行中にサインアウトされた
		return model.NewAuthRequiredError()
	}

	if err := orch.SelectTab(string(model.ViewResearch)); err != nil {
		return err
	}
	fmt.Fprintf(out, "=== Research Summary ===\n%s\n\n", snap.Result.ResearchSummary)

	if err := orch.SelectTab(string(model.ViewPreview)); err != nil {
		return err
	}
	renderer := preview.NewRenderer(security.NewPreviewHTMLPolicy())
	posts := []struct {
		platform model.Platform
		content  string
	}{
		{model.PlatformLinkedIn, snap.Result.PrimaryPlatformPost},
		{model.PlatformX, snap.Result.SecondaryPlatformPost},
	}
	for _, p := range posts {
		if err := preview.WriteText(out, renderer.Render(p.platform, p.content, cfg.DisplayName)); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}

// keysFromArgs は引数（無ければ環境変数）からCredentialSetを組み立てる。
// 空のキーの検証はAuthGate側で行う。
func keysFromArgs(args []string) (model.CredentialSet, error) {
	var set model.CredentialSet
	switch {
	case len(args) >= 2:
		set = model.CredentialSet{PrimaryKey: args[0], SecondaryKey: args[1]}
	case len(args) == 0:
		set = model.CredentialSet{
			PrimaryKey:   os.Getenv(envPrimaryKey),
			SecondaryKey: os.Getenv(envSecondaryKey),
		}
	default:
		return model.CredentialSet{}, fmt.Errorf("%w: postmate keys <groq-api-key> <agno-api-key> (or set %s and %s)", errUsage, envPrimaryKey, envSecondaryKey)
	}
	return set, nil
}

func describeIntent(intent model.NavigationIntent) string {
	switch intent {
	case model.NavigateLogin:
		return "sign in with `postmate login <user-id>`"
	case model.NavigateCredentials:
		return "save your API keys with `postmate keys <groq-api-key> <agno-api-key>`"
	case model.NavigateMain:
		return "ready, run `postmate generate <topic>`"
	default:
		return string(intent)
	}
}

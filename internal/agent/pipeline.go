package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Vinay94278/postmate/internal/metrics"
	"github.com/Vinay94278/postmate/internal/model"
)

// フェーズ失敗時にクライアントへ返すメッセージ。
const (
	MessageResearchFailed = "Research phase failed"
	MessageContentFailed  = "Content creation failed"
)

const researchSystemPrompt = `You are an AI research assistant specializing in AI and technology trends.
- Search for the latest information on the given topic using what you know.
- Extract key insights from articles, research papers, and Wikipedia.
- Summarize the findings in a concise format for content creation.
Format your answer in markdown.`

const contentSystemPrompt = `You are a creative AI content writer specializing in LinkedIn and X posts.
- First think through the post structure in <think> tags
- Create two separate posts wrapped in MARKDOWN formatting:
- For LinkedIn: Use ## LINKEDIN POST: as header
- For X: Use ## X POST: as header
- Include 3-5 relevant hashtags at the end of each post
- Ensure proper spacing between paragraphs
- Use emojis that match the content theme
- Maintain professional tone for LinkedIn, casual for X
- Use **bold** for emphasis and *italic* for subtle points
- Separate sections with ---
- Format hashtags like: #AI #Tech`

const postsPromptTemplate = `Based on this research: %s

Create two posts:
1. A LinkedIn post (300-500 characters) that is professional yet engaging
2. An X post (max 280 characters) that is concise and attention-grabbing

Include relevant hashtags for both platforms.
Format your response with clear 'LINKEDIN POST:' and 'X POST:' sections.`

// PhaseError は生成フェーズの失敗を表す。
// Phaseはmetrics.PhaseResearchかmetrics.PhaseContent。
type PhaseError struct {
	Phase string
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ClientMessage はクライアントに返す固定メッセージを返す。
// LLMプロバイダーのエラー本文は外部に出さない。
func (e *PhaseError) ClientMessage() string {
	if e.Phase == metrics.PhaseResearch {
		return MessageResearchFailed
	}
	return MessageContentFailed
}

// defaultMaxConcurrent は同時に実行する生成の既定上限。
const defaultMaxConcurrent = 4

// Pipeline はリサーチと投稿作成を順に実行する。
// 同時実行数はセマフォで制限し、上限に達した場合は空きを待つ。
type Pipeline struct {
	chat    ChatClient
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	sem     *semaphore.Weighted
	newID   func() string
}

// NewPipeline はPipelineを生成する。metricsはnilでもよい。
// maxConcurrentが0以下の場合は既定値を使う。
func NewPipeline(chat ChatClient, collector metrics.MetricsCollector, logger *slog.Logger, maxConcurrent int) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Pipeline{
		chat:    chat,
		metrics: collector,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		newID:   uuid.NewString,
	}
}

// Run はtopicについてリサーチし、その結果からLinkedIn投稿とX投稿を作成する。
// 返す本文は未サニタイズで、表示側でContentSanitizerを通す。
func (p *Pipeline) Run(ctx context.Context, topic string, creds model.CredentialSet) (model.GenerationResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return model.GenerationResult{}, model.NewInvalidInputError("topic", "Topic is required")
	}
	if !creds.Complete() {
		return model.GenerationResult{}, model.NewCredentialsMissingError()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return model.GenerationResult{}, fmt.Errorf("wait for generation slot: %w", err)
	}
	defer p.sem.Release(1)

	runID := p.newID()
	logger := p.logger.With(slog.String("run_id", runID))

	// 1. リサーチ
	research, err := p.phase(ctx, metrics.PhaseResearch, creds.PrimaryKey, []Message{
		{Role: "system", Content: researchSystemPrompt},
		{Role: "user", Content: "Find information about: " + topic},
	})
	if err != nil {
		logger.Error("research failed", slog.String("error", err.Error()))
		return model.GenerationResult{}, err
	}

	// 2. 投稿作成
	content, err := p.phase(ctx, metrics.PhaseContent, creds.PrimaryKey, []Message{
		{Role: "system", Content: contentSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(postsPromptTemplate, research)},
	})
	if err != nil {
		logger.Error("content generation failed", slog.String("error", err.Error()))
		return model.GenerationResult{}, err
	}

	// 3. 分割
	linkedIn, x := ParsePosts(content)
	logger.Info("generation completed",
		slog.Int("research_length", len(research)),
		slog.Int("linkedin_length", len(linkedIn)),
		slog.Int("x_length", len(x)),
	)

	return model.GenerationResult{
		ResearchSummary:       research,
		PrimaryPlatformPost:   linkedIn,
		SecondaryPlatformPost: x,
	}, nil
}

func (p *Pipeline) phase(ctx context.Context, name, apiKey string, messages []Message) (string, error) {
	start := time.Now()
	out, err := p.chat.Complete(ctx, apiKey, messages)
	if p.metrics != nil {
		p.metrics.RecordPhaseLatency(name, time.Since(start))
	}
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		return "", &PhaseError{Phase: name, Err: err}
	}
	return out, nil
}

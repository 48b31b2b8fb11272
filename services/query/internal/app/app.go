package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault/internal/util"
	"docvault/pkg/domain"
	"docvault/pkg/rag"
)

// NewSessionID asks Ask to allocate a fresh session.
const NewSessionID = "new"

// Retriever returns context chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, kSimilarity, kKeyword int) ([]domain.Chunk, error)
}

// Generator produces answers and condenses follow-up questions.
type Generator interface {
	Generate(ctx context.Context, question string, contexts []string, history []domain.Turn) (string, error)
	Condense(ctx context.Context, question string, history []domain.Turn) (string, error)
}

// History stores prior turns of a session.
type History interface {
	Load(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	Append(ctx context.Context, sessionID string, turn domain.Turn) error
}

// Config holds the orchestrator collaborators.
type Config struct {
	Retriever    Retriever
	Generator    Generator
	History      History
	SimilarityK  int
	KeywordK     int
	HistoryLimit int
}

// App runs the query pipeline: retrieve, then generate.
type App struct {
	retriever    Retriever
	generator    Generator
	history      History
	similarityK  int
	keywordK     int
	historyLimit int
	now          func() time.Time
}

// Request is one incoming question.
type Request struct {
	Query     string
	SessionID string
}

// Result carries the answer and the state the request ended in.
type Result struct {
	Answer domain.Answer
	State  State
}

func New(cfg Config) (*App, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator required")
	}
	return &App{
		retriever:    cfg.Retriever,
		generator:    cfg.Generator,
		history:      cfg.History,
		similarityK:  cfg.SimilarityK,
		keywordK:     cfg.KeywordK,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
	}, nil
}

// NormalizeQuery replaces every newline with a space and changes nothing else.
func NormalizeQuery(q string) string {
	return strings.ReplaceAll(q, "\n", " ")
}

// Ask answers one question. On failure the returned Result has State FAILED
// and the error carries the backend message unchanged.
func (a *App) Ask(ctx context.Context, req Request) (Result, error) {
	r := &run{app: a, state: StateReceived, logger: util.LoggerFromContext(ctx)}
	answer, err := r.execute(ctx, req)
	if err != nil {
		r.fail(err)
		return Result{State: r.state}, err
	}
	return Result{Answer: answer, State: r.state}, nil
}

type run struct {
	app    *App
	state  State
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context, req Request) (domain.Answer, error) {
	question := NormalizeQuery(req.Query)
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, rag.Invalid("query is required")
	}
	sessionID, history, err := r.app.session(ctx, req.SessionID)
	if err != nil {
		return domain.Answer{}, err
	}

	if err := r.to(StateRetrieving); err != nil {
		return domain.Answer{}, err
	}
	standalone := question
	if len(history) > 0 {
		if standalone, err = r.app.generator.Condense(ctx, question, history); err != nil {
			return domain.Answer{}, err
		}
	}
	chunks, err := r.app.retriever.Retrieve(ctx, standalone, r.app.similarityK, r.app.keywordK)
	if err != nil {
		return domain.Answer{}, err
	}

	if err := r.to(StateGenerating); err != nil {
		return domain.Answer{}, err
	}
	contexts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contexts = append(contexts, c.Content)
	}
	text, err := r.app.generator.Generate(ctx, standalone, contexts, history)
	if err != nil {
		return domain.Answer{}, err
	}

	if err := r.to(StateCompleted); err != nil {
		return domain.Answer{}, err
	}
	if sessionID != "" {
		if err := r.app.history.Append(ctx, sessionID, domain.Turn{Question: question, Answer: text}); err != nil {
			r.logger.Warn("session history append failed", "session_id", sessionID, "err", err)
		}
	}
	return domain.Answer{
		Text:      text,
		Question:  question,
		Sources:   buildSources(chunks),
		SessionID: sessionID,
		CreatedAt: r.app.now().UTC(),
	}, nil
}

func (r *run) to(next State) error {
	from := r.state
	state, err := from.next(next)
	if err != nil {
		return err
	}
	r.state = state
	r.logger.Debug("query state", "from", string(from), "to", string(state))
	return nil
}

func (r *run) fail(err error) {
	if r.state.Terminal() {
		return
	}
	from := r.state
	r.state = StateFailed
	r.logger.Debug("query state", "from", string(from), "to", string(StateFailed), "err", err)
}

// session resolves the request session and loads its history. An empty id
// means a single-turn request.
func (a *App) session(ctx context.Context, raw string) (string, []domain.Turn, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, nil
	}
	if a.history == nil {
		return "", nil, rag.Invalid("sessionId is not supported: no history store configured")
	}
	if raw == NewSessionID {
		return uuid.NewString(), nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", nil, rag.Invalid("sessionId must be a UUID or \"new\"")
	}
	history, err := a.history.Load(ctx, id.String(), a.historyLimit)
	if err != nil {
		return "", nil, err
	}
	return id.String(), history, nil
}

// IsValidation reports whether err should be answered with 400.
func IsValidation(err error) bool {
	return errors.Is(err, rag.ErrValidation)
}

func buildSources(chunks []domain.Chunk) []domain.Source {
	sources := make([]domain.Source, 0, len(chunks))
	for i, chunk := range chunks {
		snippet := chunk.Content
		if runes := []rune(snippet); len(runes) > 240 {
			snippet = string(runes[:240]) + "…"
		}
		sources = append(sources, domain.Source{
			Label:      fmt.Sprintf("[%d]", i+1),
			DocumentID: chunk.DocumentID,
			Location:   chunkLocation(chunk.Metadata),
			Snippet:    snippet,
		})
	}
	return sources
}

func chunkLocation(meta map[string]string) string {
	if page := strings.TrimSpace(meta["page"]); page != "" {
		return "page " + page
	}
	if idx := strings.TrimSpace(meta["chunk"]); idx != "" {
		return "chunk " + idx
	}
	return ""
}

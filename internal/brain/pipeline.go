package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/tmebrain/internal/llm"
	"github.com/lazypower/tmebrain/internal/search"
	"github.com/lazypower/tmebrain/internal/store"
	"github.com/lazypower/tmebrain/internal/textutil"
)

// Sources tag where an answer's context came from.
const (
	SourceHistory = "history"
	SourceCache   = "cache"
	SourceIndex   = "index"
	SourceSearch  = "search"
	SourceFailed  = "failed"
)

const (
	// HistoryPrefix marks answers replayed from history.
	HistoryPrefix = "[From history] "
	// ApologyPrefix starts every answer produced after a failure.
	ApologyPrefix = "Xin lỗi, tôi không thể xử lý yêu cầu này. Lỗi: "

	maxContextChars    = 1000
	maxDiagnosticChars = 100
	alertQueryChars    = 50
)

// Result is the outcome of one Answer call.
type Result struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
}

// Answer resolves query within a session, creating the session when
// sessionID is empty or unknown. Faults inside the pipeline degrade to an
// apology answer; the only error returned is a failure to resolve the session.
func (b *Brain) Answer(ctx context.Context, query, sessionID string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	if n := b.requests.Add(1); n%b.checkEvery == 0 {
		b.opportunisticCheck(ctx)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session, err := b.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	if err := b.sessions.AppendQuestion(ctx, sessionID, query); err != nil {
		b.log.Warn().Err(err).Str("session", sessionID).Msg("record question failed")
	}

	res := &Result{SessionID: sessionID}
	defer func() {
		if b.recorder != nil {
			b.recorder.ObserveAnswer(res.Source, time.Since(start))
		}
	}()

	rec, err := b.history.FindByQuestion(ctx, query)
	if err != nil {
		b.fault(res, query, fmt.Errorf("history lookup: %w", err))
		return res, nil
	}
	if rec != nil {
		res.Answer = HistoryPrefix + rec.Answer
		res.Source = SourceHistory
		return res, nil
	}

	info, source, err := b.retrieve(ctx, query)
	if err != nil {
		b.fault(res, query, err)
		return res, nil
	}

	answer, err := b.synthesize(ctx, query, info, source, session)
	if err != nil {
		res.Answer = Apology(err)
		res.Source = SourceFailed
		return res, nil
	}
	res.Answer = answer
	res.Source = source

	b.persist(ctx, sessionID, query, answer, source)
	return res, nil
}

// retrieve walks cache, similarity index and web search, stopping at the
// first stage that yields context. Only a cache read failure is an error.
func (b *Brain) retrieve(ctx context.Context, query string) (string, string, error) {
	cached, ok, err := b.cache.Get(ctx, query)
	if err != nil {
		return "", "", fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		return cached, SourceCache, nil
	}

	if text := b.similar(ctx, query); text != "" {
		return text, SourceIndex, nil
	}
	return b.webSearch(ctx, query), SourceSearch, nil
}

func (b *Brain) similar(ctx context.Context, query string) string {
	if b.index == nil {
		return ""
	}
	docs, err := b.index.Similar(ctx, query, b.indexK)
	if err != nil {
		b.log.Warn().Err(err).Msg("similarity search failed")
		return ""
	}
	return strings.Join(docs, "\n")
}

func (b *Brain) webSearch(ctx context.Context, query string) string {
	if b.searcher == nil {
		return ""
	}
	result, err := b.searcher.Search(ctx, search.TruncateQuery(query))
	if err != nil {
		b.log.Warn().Err(err).Msg("web search failed")
		return search.DegradedText(err)
	}

	text := search.Normalize(result)
	if text == "" {
		return ""
	}
	if err := b.cache.Put(ctx, query, text); err != nil {
		b.log.Warn().Err(err).Msg("cache search result failed")
	}
	return text
}

// synthesize generates the answer. A failure is retried once without the
// session context; a second failure is alerted and returned.
func (b *Brain) synthesize(ctx context.Context, query, info, source string, session *store.SessionContext) (string, error) {
	info = truncateContext(info)

	answer, err := b.complete(ctx, llm.AnswerPrompt(query, info, source, session.ContextString()))
	if err == nil {
		return answer, nil
	}
	b.log.Warn().Err(err).Msg("generation failed, retrying without session context")
	b.generationFailed("1")

	answer, err = b.complete(ctx, llm.AnswerPrompt(query, info, source, ""))
	if err == nil {
		return answer, nil
	}
	b.log.Error().Err(err).Msg("generation retry failed")
	b.generationFailed("2")
	b.alert(err, "generation: "+textutil.Truncate(query, alertQueryChars))
	return "", err
}

func (b *Brain) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty completion")
	}
	return resp.Content, nil
}

// persist records a generated answer and reclassifies the session topic.
// Both writes are best effort.
func (b *Brain) persist(ctx context.Context, sessionID, query, answer, source string) {
	if err := b.history.Save(ctx, query, answer, source); err != nil {
		b.log.Warn().Err(err).Msg("save history failed")
	}
	if topic := b.topics.Classify(query); topic != "" {
		if err := b.sessions.SetTopic(ctx, sessionID, topic); err != nil {
			b.log.Warn().Err(err).Str("session", sessionID).Msg("set topic failed")
		}
	}
}

func (b *Brain) fault(res *Result, query string, err error) {
	b.log.Error().Err(err).Msg("answer failed")
	b.alert(err, "ask: "+textutil.Truncate(query, alertQueryChars))
	res.Answer = Apology(err)
	res.Source = SourceFailed
}

func (b *Brain) opportunisticCheck(ctx context.Context) {
	if b.retention == nil {
		return
	}
	if _, err := b.retention.CheckAndCleanup(ctx); err != nil {
		b.log.Warn().Err(err).Msg("opportunistic retention check failed")
	}
}

func (b *Brain) generationFailed(attempt string) {
	if b.recorder != nil {
		b.recorder.GenerationFailed(attempt)
	}
}

// Apology is the fixed answer returned when a query cannot be processed.
func Apology(err error) string {
	return ApologyPrefix + textutil.Truncate(err.Error(), maxDiagnosticChars)
}

func truncateContext(s string) string {
	if t := textutil.Truncate(s, maxContextChars); len(t) < len(s) {
		return t + "..."
	}
	return s
}

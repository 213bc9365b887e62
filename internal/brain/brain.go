// Package brain resolves user queries through history, cache, the
// similarity index and web search before generating an answer.
package brain

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazypower/tmebrain/internal/index"
	"github.com/lazypower/tmebrain/internal/llm"
	"github.com/lazypower/tmebrain/internal/retention"
	"github.com/lazypower/tmebrain/internal/search"
	"github.com/lazypower/tmebrain/internal/store"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// HistoryStore is the answered-question log.
type HistoryStore interface {
	Save(ctx context.Context, question, answer, source string) error
	FindByQuestion(ctx context.Context, query string) (*store.HistoryRecord, error)
	ForQuestions(ctx context.Context, questions []string, limit int) ([]store.HistoryRecord, error)
}

// CacheStore holds recent web search results.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// SessionStore holds per-conversation context.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*store.SessionContext, error)
	GetOrCreate(ctx context.Context, sessionID string) (*store.SessionContext, error)
	AppendQuestion(ctx context.Context, sessionID, question string) error
	SetTopic(ctx context.Context, sessionID, topic string) error
	SetSummary(ctx context.Context, sessionID, summary string) error
	Delete(ctx context.Context, sessionID string) error
}

// Index is the similarity index over reference documents.
type Index interface {
	Add(ctx context.Context, content string, metadata map[string]any) (int64, error)
	Similar(ctx context.Context, query string, k int) ([]string, error)
	Find(ctx context.Context, query string, opts index.FindOpts) ([]index.Match, error)
}

// Alerter receives operator alerts.
type Alerter interface {
	SendError(err error, where string) bool
}

// Retention is the storage retention service.
type Retention interface {
	CheckAndCleanup(ctx context.Context) (*retention.CleanupResult, error)
	Cleanup(ctx context.Context, days int) (*retention.CleanupResult, error)
	Stats(ctx context.Context) (*retention.Stats, error)
}

// Recorder observes answers and generation failures.
type Recorder interface {
	ObserveAnswer(source string, d time.Duration)
	GenerationFailed(attempt string)
}

// Deps are the collaborators of a Brain. Index, Searcher, Alerter,
// Retention and Recorder may be nil.
type Deps struct {
	History   HistoryStore
	Cache     CacheStore
	Sessions  SessionStore
	Index     Index
	Searcher  search.Searcher
	LLM       llm.Client
	Alerter   Alerter
	Retention Retention
	Recorder  Recorder
	Topics    *Classifier
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	// CheckEvery runs a retention check on every Nth Answer call.
	CheckEvery int64
	// IndexK is how many similar documents feed the context.
	IndexK int
}

const (
	DefaultCheckEvery = 100
	DefaultIndexK     = 2
)

// Brain is the resolution pipeline. It is safe for concurrent use.
type Brain struct {
	history   HistoryStore
	cache     CacheStore
	sessions  SessionStore
	index     Index
	searcher  search.Searcher
	llm       llm.Client
	alerter   Alerter
	retention Retention
	recorder  Recorder
	topics    *Classifier
	log       zerolog.Logger

	checkEvery int64
	indexK     int
	requests   atomic.Int64
}

// New creates a Brain.
func New(deps Deps, log zerolog.Logger, opts Options) *Brain {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = DefaultCheckEvery
	}
	if opts.IndexK <= 0 {
		opts.IndexK = DefaultIndexK
	}
	if deps.Topics == nil {
		deps.Topics = NewClassifier(DefaultTopics)
	}
	return &Brain{
		history:    deps.History,
		cache:      deps.Cache,
		sessions:   deps.Sessions,
		index:      deps.Index,
		searcher:   deps.Searcher,
		llm:        deps.LLM,
		alerter:    deps.Alerter,
		retention:  deps.Retention,
		recorder:   deps.Recorder,
		topics:     deps.Topics,
		log:        log.With().Str("component", "brain").Logger(),
		checkEvery: opts.CheckEvery,
		indexK:     opts.IndexK,
	}
}

// Requests returns how many Answer calls the Brain has received.
func (b *Brain) Requests() int64 {
	return b.requests.Load()
}

func (b *Brain) alert(err error, where string) {
	if b.alerter != nil {
		b.alerter.SendError(err, where)
	}
}

func nowUnix() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}

package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lazypower/tmebrain/internal/brain"
	"github.com/lazypower/tmebrain/internal/config"
	"github.com/lazypower/tmebrain/internal/index"
	"github.com/lazypower/tmebrain/internal/llm"
	"github.com/lazypower/tmebrain/internal/notify"
	"github.com/lazypower/tmebrain/internal/observability"
	"github.com/lazypower/tmebrain/internal/retention"
	"github.com/lazypower/tmebrain/internal/search"
	"github.com/lazypower/tmebrain/internal/store"
)

// app is the wired set of services every command shares.
type app struct {
	db        *store.DB
	brain     *brain.Brain
	retention *retention.Service
	notifier  *notify.Notifier
	metrics   *observability.Metrics
}

// newApp opens the database and wires the pipeline. The LLM is optional for
// commands that never generate.
func newApp(cfg *config.Config, log zerolog.Logger, needLLM bool) (*app, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		if needLLM {
			db.Close()
			return nil, fmt.Errorf("llm: %w", err)
		}
		log.Debug().Err(err).Msg("llm not configured")
	}

	metrics := observability.NewMetrics("tmebrain")

	telegram := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	notifier := notify.New(telegram, log, notify.Options{
		DedupWindow: cfg.Notify.DedupWindow,
		QueueSize:   cfg.Notify.QueueSize,
		Recorder:    metrics,
	})

	history := db.History()
	cache := db.Cache(cfg.Brain.CacheTTL)
	sessions := db.Sessions(cfg.Brain.QuestionWindow)

	ret := retention.New(retention.Stores{
		History:  history,
		Cache:    cache,
		Sessions: sessions,
		Storage:  db,
	}, notifier, metrics, log, retention.Config{
		MaxBytes:    cfg.MaxDataBytes(),
		CleanupDays: cfg.Retention.CleanupDays,
		Interval:    cfg.Retention.SweepInterval,
	})

	var embedder index.Embedder = index.NewHashingEmbedder(0)
	if cfg.LLM.EmbeddingModel != "" {
		ollamaURL := cfg.LLM.OllamaURL
		if ollamaURL == "" {
			ollamaURL = "http://localhost:11434"
		}
		embedder = index.NewOllamaEmbedder(ollamaURL, cfg.LLM.EmbeddingModel)
	}

	var searcher search.Searcher
	if cfg.Search.APIKey != "" {
		searcher = search.NewTavily(cfg.Search.APIKey, cfg.Search.URL, cfg.Search.MaxResults, cfg.Search.Timeout)
	} else {
		log.Warn().Msg("search api key not set, web search disabled")
	}

	topics := brain.DefaultTopics
	if cfg.Brain.TopicsFile != "" {
		topics, err = brain.LoadTopics(cfg.Brain.TopicsFile)
		if err != nil {
			notifier.Close()
			db.Close()
			return nil, err
		}
	}

	b := brain.New(brain.Deps{
		History:   history,
		Cache:     cache,
		Sessions:  sessions,
		Index:     index.New(db.Documents(), embedder),
		Searcher:  searcher,
		LLM:       client,
		Alerter:   notifier,
		Retention: ret,
		Recorder:  metrics,
		Topics:    brain.NewClassifier(topics),
	}, log, brain.Options{
		CheckEvery: cfg.Retention.CheckEvery,
		IndexK:     cfg.Brain.IndexK,
	})

	return &app{
		db:        db,
		brain:     b,
		retention: ret,
		notifier:  notifier,
		metrics:   metrics,
	}, nil
}

// Close flushes pending notifications and closes the database.
func (a *app) Close() error {
	a.notifier.Close()
	return a.db.Close()
}

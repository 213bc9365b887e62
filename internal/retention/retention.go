// Package retention keeps the database under its size ceiling by deleting
// old rows and compacting the file.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/lazypower/tmebrain/internal/store"
)

const (
	DefaultMaxBytes    = 1024 * 1024 * 1024
	DefaultCleanupDays = 30
	DefaultInterval    = 24 * time.Hour
)

// Sweep triggers, used in logs and metrics.
const (
	TriggerScheduled     = "scheduled"
	TriggerOpportunistic = "opportunistic"
	TriggerManual        = "manual"
)

// Pruner deletes rows older than a cutoff from one store.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Storage measures and compacts the underlying database.
type Storage interface {
	Footprint(ctx context.Context) (int64, error)
	Compact(ctx context.Context) error
	Counts(ctx context.Context) (store.Counts, error)
}

// Reporter receives operator notifications.
type Reporter interface {
	SendWarning(title, details string) bool
	SendCleanupReport(deleted, freedBytes, currentBytes int64) bool
	SendError(err error, where string) bool
}

// Recorder observes sweeps and footprint measurements.
type Recorder interface {
	Sweep(trigger, result string, deleted map[string]int64)
	Footprint(bytes int64)
}

// Stores are the collaborators a sweep operates on.
type Stores struct {
	History  Pruner
	Cache    Pruner
	Sessions Pruner
	Storage  Storage
}

// Config tunes the service. Zero values select the defaults.
type Config struct {
	MaxBytes    int64
	CleanupDays int
	Interval    time.Duration
	Now         func() time.Time
}

// CleanupResult describes one sweep.
type CleanupResult struct {
	DeletedHistory  int64     `json:"deleted_conversations"`
	DeletedCache    int64     `json:"deleted_cache"`
	DeletedSessions int64     `json:"deleted_sessions"`
	SizeBefore      int64     `json:"size_before_bytes"`
	SizeAfter       int64     `json:"size_after_bytes"`
	Freed           int64     `json:"freed_bytes"`
	Cutoff          time.Time `json:"cutoff"`
}

// Total returns the number of rows deleted across all stores.
func (r *CleanupResult) Total() int64 {
	return r.DeletedHistory + r.DeletedCache + r.DeletedSessions
}

// Stats is a point-in-time view of storage usage.
type Stats struct {
	FootprintBytes int64      `json:"footprint_bytes"`
	MaxBytes       int64      `json:"max_bytes"`
	NeedsCleanup   bool       `json:"needs_cleanup"`
	History        int64      `json:"conversations_count"`
	Cache          int64      `json:"cache_count"`
	Sessions       int64      `json:"sessions_count"`
	Documents      int64      `json:"documents_count"`
	OldestHistory  *time.Time `json:"oldest_conversation,omitempty"`
}

// Service runs retention sweeps. Sweeps are serialized; a sweep started
// while another runs waits for it.
type Service struct {
	stores   Stores
	reporter Reporter
	recorder Recorder
	log      zerolog.Logger
	cfg      Config

	sweepMu  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup
}

// New creates a Service. reporter and recorder may be nil.
func New(stores Stores, reporter Reporter, recorder Recorder, log zerolog.Logger, cfg Config) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.CleanupDays <= 0 {
		cfg.CleanupDays = DefaultCleanupDays
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		stores:   stores,
		reporter: reporter,
		recorder: recorder,
		log:      log.With().Str("component", "retention").Logger(),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// MaxBytes returns the storage ceiling.
func (s *Service) MaxBytes() int64 {
	return s.cfg.MaxBytes
}

// Footprint returns the current on-disk size of the database.
func (s *Service) Footprint(ctx context.Context) (int64, error) {
	size, err := s.stores.Storage.Footprint(ctx)
	if err != nil {
		return 0, fmt.Errorf("measure footprint: %w", err)
	}
	if s.recorder != nil {
		s.recorder.Footprint(size)
	}
	return size, nil
}

// NeedsCleanup reports whether the footprint exceeds the ceiling.
func (s *Service) NeedsCleanup(ctx context.Context) (bool, error) {
	size, err := s.Footprint(ctx)
	if err != nil {
		return false, err
	}
	return size > s.cfg.MaxBytes, nil
}

// CheckAndCleanup sweeps only when the footprint exceeds the ceiling. It
// returns nil without error when no sweep was needed.
func (s *Service) CheckAndCleanup(ctx context.Context) (*CleanupResult, error) {
	return s.checkAndCleanup(ctx, TriggerOpportunistic)
}

func (s *Service) checkAndCleanup(ctx context.Context, trigger string) (*CleanupResult, error) {
	size, err := s.Footprint(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trigger", trigger).
		Str("size", humanize.IBytes(uint64(size))).
		Str("limit", humanize.IBytes(uint64(s.cfg.MaxBytes))).
		Msg("storage check")

	if size <= s.cfg.MaxBytes {
		if s.recorder != nil {
			s.recorder.Sweep(trigger, "skipped", nil)
		}
		return nil, nil
	}

	s.report(func(r Reporter) {
		r.SendWarning("Data Size Exceeded", fmt.Sprintf(
			"Current size: %s\nLimit: %s\nStarting cleanup of data older than %d days...",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.cfg.MaxBytes)), s.cfg.CleanupDays))
	})

	result, err := s.cleanup(ctx, s.cfg.CleanupDays, trigger)
	s.report(func(r Reporter) {
		r.SendCleanupReport(result.Total(), result.Freed, result.SizeAfter)
	})
	return result, err
}

// Cleanup deletes history, cache and session rows older than days and then
// compacts the database. days <= 0 selects the configured retention.
// Failures are reported; the returned result reflects what did succeed.
func (s *Service) Cleanup(ctx context.Context, days int) (*CleanupResult, error) {
	if days <= 0 {
		days = s.cfg.CleanupDays
	}
	return s.cleanup(ctx, days, TriggerManual)
}

func (s *Service) cleanup(ctx context.Context, days int, trigger string) (*CleanupResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	result := &CleanupResult{
		Cutoff: s.cfg.Now().Add(-time.Duration(days) * 24 * time.Hour),
	}

	var errs []error
	before, err := s.Footprint(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	result.SizeBefore = before

	for _, step := range []struct {
		name   string
		pruner Pruner
		dst    *int64
	}{
		{"history", s.stores.History, &result.DeletedHistory},
		{"cache", s.stores.Cache, &result.DeletedCache},
		{"sessions", s.stores.Sessions, &result.DeletedSessions},
	} {
		n, err := step.pruner.PruneBefore(ctx, result.Cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", step.name, err))
			continue
		}
		*step.dst = n
	}

	if err := s.stores.Storage.Compact(ctx); err != nil {
		errs = append(errs, fmt.Errorf("compact: %w", err))
	}

	after, err := s.Footprint(ctx)
	if err != nil {
		errs = append(errs, err)
		after = before
	}
	result.SizeAfter = after
	result.Freed = max(before-after, 0)

	err = errors.Join(errs...)
	outcome := "cleaned"
	if err != nil {
		outcome = "failed"
		s.log.Error().Err(err).Str("trigger", trigger).Msg("cleanup failed")
		s.report(func(r Reporter) { r.SendError(err, "retention.Cleanup") })
	}
	if s.recorder != nil {
		s.recorder.Sweep(trigger, outcome, map[string]int64{
			"history":  result.DeletedHistory,
			"cache":    result.DeletedCache,
			"sessions": result.DeletedSessions,
		})
	}

	s.log.Info().
		Str("trigger", trigger).
		Int("days", days).
		Int64("deleted", result.Total()).
		Str("freed", humanize.IBytes(uint64(result.Freed))).
		Str("size", humanize.IBytes(uint64(result.SizeAfter))).
		Msg("cleanup completed")

	return result, err
}

// Stats reports storage usage and row counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	size, err := s.Footprint(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.stores.Storage.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return &Stats{
		FootprintBytes: size,
		MaxBytes:       s.cfg.MaxBytes,
		NeedsCleanup:   size > s.cfg.MaxBytes,
		History:        counts.History,
		Cache:          counts.Cache,
		Sessions:       counts.Sessions,
		Documents:      counts.Documents,
		OldestHistory:  counts.OldestHistory,
	}, nil
}

// Start runs a check immediately and then once per interval until Stop.
func (s *Service) Start() {
	s.wg.Go(func() {
		s.scheduledCheck()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.scheduledCheck()
			case <-s.stopCh:
				return
			}
		}
	})
}

// Stop ends the scheduled loop and waits for a running check to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) scheduledCheck() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.checkAndCleanup(ctx, TriggerScheduled); err != nil {
		s.log.Error().Err(err).Msg("scheduled check failed")
	}
}

func (s *Service) report(fn func(Reporter)) {
	if s.reporter != nil {
		fn(s.reporter)
	}
}

// Package notify dispatches operational alerts to an external channel
// without blocking the caller.
package notify

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/lazypower/tmebrain/internal/textutil"
)

const (
	// DefaultDedupWindow is how long an identical error stays suppressed.
	DefaultDedupWindow = 60 * time.Second
	// DefaultQueueSize bounds the pending message queue.
	DefaultQueueSize = 64

	dedupKeyChars  = 50
	errorBodyChars = 500
	dedupCapacity  = 1024
	sendTimeout    = 10 * time.Second
	timeLayout     = "2006-01-02 15:04:05"
)

// Message kinds, used for logs and metrics.
const (
	KindError   = "error"
	KindWarning = "warning"
	KindInfo    = "info"
	KindCleanup = "cleanup"
)

// Recorder observes notification outcomes: sent, failed, dropped, suppressed, disabled.
type Recorder interface {
	Notification(kind, outcome string)
}

// Options configures a Notifier. Zero values select defaults.
type Options struct {
	DedupWindow time.Duration
	QueueSize   int
	Recorder    Recorder
	Now         func() time.Time
}

type message struct {
	kind string
	text string
}

// Notifier formats alerts and hands them to a single sender goroutine.
// Every Send method returns immediately; delivery failures are logged.
type Notifier struct {
	transport Transport
	log       zerolog.Logger
	recorder  Recorder
	now       func() time.Time
	window    time.Duration

	dedupMu sync.Mutex
	dedup   *expirable.LRU[string, time.Time]

	mu     sync.RWMutex
	closed bool
	queue  chan message
	wg     conc.WaitGroup
}

// New starts a Notifier. A nil transport disables delivery.
func New(transport Transport, log zerolog.Logger, opts Options) *Notifier {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	n := &Notifier{
		log:      log.With().Str("component", "notify").Logger(),
		recorder: opts.Recorder,
		now:      opts.Now,
		window:   opts.DedupWindow,
		dedup:    expirable.NewLRU[string, time.Time](dedupCapacity, nil, opts.DedupWindow),
		queue:    make(chan message, opts.QueueSize),
	}
	// A typed nil pointer must not count as a configured transport.
	if t, ok := transport.(*Telegram); !ok || t != nil {
		n.transport = transport
	}
	n.wg.Go(n.run)
	return n
}

// Enabled reports whether messages are delivered anywhere.
func (n *Notifier) Enabled() bool {
	return n.transport != nil
}

// SendError reports err together with where it happened. An error with the
// same type and message prefix sent within the dedup window is dropped.
func (n *Notifier) SendError(err error, where string) bool {
	if err == nil {
		return false
	}
	typeName := fmt.Sprintf("%T", err)
	msg := err.Error()

	if n.suppressed(typeName + ":" + textutil.Truncate(msg, dedupKeyChars)) {
		n.log.Debug().Str("error", msg).Msg("duplicate error suppressed")
		n.record(KindError, "suppressed")
		return false
	}

	if where == "" {
		where = "Unknown"
	}
	text := fmt.Sprintf("<b>TME Brain Error</b>\n\n<b>Time:</b> %s\n<b>Context:</b> %s\n<b>Error:</b> %s\n<b>Message:</b> %s",
		n.now().Format(timeLayout),
		html.EscapeString(where),
		html.EscapeString(typeName),
		html.EscapeString(textutil.Truncate(msg, errorBodyChars)),
	)
	return n.enqueue(KindError, text)
}

// SendWarning reports a condition that needs attention.
func (n *Notifier) SendWarning(title, details string) bool {
	return n.enqueue(KindWarning, n.titled("TME Brain Warning", title, details))
}

// SendInfo reports an informational event.
func (n *Notifier) SendInfo(title, details string) bool {
	return n.enqueue(KindInfo, n.titled("TME Brain Info", title, details))
}

// SendCleanupReport summarizes a retention sweep.
func (n *Notifier) SendCleanupReport(deleted int64, freedBytes, currentBytes int64) bool {
	if freedBytes < 0 {
		freedBytes = 0
	}
	text := fmt.Sprintf("<b>TME Data Cleanup Report</b>\n\n<b>Time:</b> %s\n<b>Deleted:</b> %s records\n<b>Freed:</b> %s\n<b>Current Size:</b> %s",
		n.now().Format(timeLayout),
		humanize.Comma(deleted),
		humanize.IBytes(uint64(freedBytes)),
		humanize.IBytes(uint64(max(currentBytes, 0))),
	)
	return n.enqueue(KindCleanup, text)
}

// Close stops accepting messages and waits for queued ones to be sent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Notifier) titled(header, title, details string) string {
	return fmt.Sprintf("<b>%s</b>\n\n<b>Time:</b> %s\n<b>Title:</b> %s\n<b>Details:</b>\n%s",
		header,
		n.now().Format(timeLayout),
		html.EscapeString(title),
		html.EscapeString(details),
	)
}

// suppressed records key as sent now unless it was already sent inside the
// window. The LRU's own TTL only bounds memory; the window check uses n.now.
func (n *Notifier) suppressed(key string) bool {
	n.dedupMu.Lock()
	defer n.dedupMu.Unlock()

	now := n.now()
	if last, ok := n.dedup.Get(key); ok && now.Sub(last) < n.window {
		return true
	}
	n.dedup.Add(key, now)
	return false
}

func (n *Notifier) enqueue(kind, text string) bool {
	if n.transport == nil {
		n.log.Debug().Str("kind", kind).Msg("notifications disabled, skipping")
		n.record(kind, "disabled")
		return false
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.record(kind, "dropped")
		return false
	}

	select {
	case n.queue <- message{kind: kind, text: text}:
		return true
	default:
		n.log.Warn().Str("kind", kind).Msg("notification queue full, dropping message")
		n.record(kind, "dropped")
		return false
	}
}

func (n *Notifier) run() {
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := n.transport.Send(ctx, msg.text)
		cancel()

		if err != nil {
			n.log.Warn().Err(err).Str("kind", msg.kind).Msg("notification failed")
			n.record(msg.kind, "failed")
			continue
		}
		n.log.Debug().Str("kind", msg.kind).Msg("notification sent")
		n.record(msg.kind, "sent")
	}
}

func (n *Notifier) record(kind, outcome string) {
	if n.recorder != nil {
		n.recorder.Notification(kind, outcome)
	}
}

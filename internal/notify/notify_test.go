package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTransport) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.err
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) Notification(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[kind+"/"+outcome]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSendErrorDeduplicates(t *testing.T) {
	transport := &fakeTransport{}
	rec := &countingRecorder{}
	n := New(transport, zerolog.Nop(), Options{Recorder: rec})

	err := errors.New("upstream timeout")
	assert.True(t, n.SendError(err, "generation"))
	assert.False(t, n.SendError(err, "generation"))
	assert.False(t, n.SendError(errors.New("upstream timeout"), "elsewhere"), "same type and message is a duplicate")
	n.Close()

	require.Len(t, transport.messages(), 1)
	assert.Equal(t, 2, rec.get("error/suppressed"))
	assert.Equal(t, 1, rec.get("error/sent"))
}

func TestSendErrorDedupKeyUsesPrefix(t *testing.T) {
	transport := &fakeTransport{}
	n := New(transport, zerolog.Nop(), Options{})

	prefix := strings.Repeat("x", dedupKeyChars)
	assert.True(t, n.SendError(errors.New(prefix+" first tail"), ""))
	assert.False(t, n.SendError(errors.New(prefix+" second tail"), ""), "only the first 50 characters form the key")
	assert.True(t, n.SendError(fmt.Errorf("%s", "different message"), ""))
	n.Close()

	assert.Len(t, transport.messages(), 2)
}

func TestSendErrorWindowExpires(t *testing.T) {
	transport := &fakeTransport{}
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := New(transport, zerolog.Nop(), Options{Now: c.Now})

	err := errors.New("boom")
	assert.True(t, n.SendError(err, ""))
	c.Advance(59 * time.Second)
	assert.False(t, n.SendError(err, ""))
	c.Advance(time.Second)
	assert.True(t, n.SendError(err, ""))
	n.Close()

	assert.Len(t, transport.messages(), 2)
}

func TestMessageFormats(t *testing.T) {
	transport := &fakeTransport{}
	c := &clock{t: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	n := New(transport, zerolog.Nop(), Options{Now: c.Now})

	n.SendError(errors.New("bad <tag>"), "ask: giá vàng")
	n.SendWarning("Storage high", "1.1 GB > 1 GB")
	n.SendInfo("Started", "ok")
	n.SendCleanupReport(1234, 5*1024*1024, 100*1024*1024)
	n.Close()

	msgs := transport.messages()
	require.Len(t, msgs, 4)

	assert.Contains(t, msgs[0], "<b>TME Brain Error</b>")
	assert.Contains(t, msgs[0], "2026-03-04 05:06:07")
	assert.Contains(t, msgs[0], "ask: giá vàng")
	assert.Contains(t, msgs[0], "*errors.errorString")
	assert.Contains(t, msgs[0], "bad &lt;tag&gt;")

	assert.Contains(t, msgs[1], "<b>TME Brain Warning</b>")
	assert.Contains(t, msgs[1], "1.1 GB &gt; 1 GB")
	assert.Contains(t, msgs[2], "<b>TME Brain Info</b>")

	assert.Contains(t, msgs[3], "1,234 records")
	assert.Contains(t, msgs[3], "5.0 MiB")
	assert.Contains(t, msgs[3], "100 MiB")
}

func TestTransportFailureIsSwallowed(t *testing.T) {
	transport := &fakeTransport{err: errors.New("network down")}
	rec := &countingRecorder{}
	n := New(transport, zerolog.Nop(), Options{Recorder: rec})

	assert.True(t, n.SendInfo("x", "y"))
	n.Close()

	assert.Equal(t, 1, rec.get("info/failed"))
}

type blockingTransport struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTransport) Send(ctx context.Context, _ string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestQueueFullDropsWithoutBlocking(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	rec := &countingRecorder{}
	n := New(transport, zerolog.Nop(), Options{QueueSize: 1, Recorder: rec})

	assert.True(t, n.SendInfo("first", ""))
	<-transport.started
	assert.True(t, n.SendInfo("second", ""), "fills the queue")
	assert.False(t, n.SendInfo("third", ""), "queue full")

	close(transport.release)
	n.Close()
	assert.Equal(t, 1, rec.get("info/dropped"))
	assert.Equal(t, 2, rec.get("info/sent"))
}

func TestDisabledNotifier(t *testing.T) {
	rec := &countingRecorder{}
	n := New(NewTelegram("", ""), zerolog.Nop(), Options{Recorder: rec})
	defer n.Close()

	assert.False(t, n.Enabled())
	assert.False(t, n.SendWarning("x", "y"))
	assert.Equal(t, 1, rec.get("warning/disabled"))
}

func TestSendAfterClose(t *testing.T) {
	n := New(&fakeTransport{}, zerolog.Nop(), Options{})
	n.Close()
	n.Close()

	assert.False(t, n.SendInfo("late", ""))
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		require.NoError(t, decodeJSON(r, &got))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("123:abc", "-100")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), "<b>hi</b>"))

	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestTelegramSendStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok": false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := NewTelegram("123:abc", "-100")
	tg.baseURL = srv.URL
	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTelegramErrorRedactsToken(t *testing.T) {
	tg := NewTelegram("secret-token", "-100")
	tg.baseURL = "http://127.0.0.1:1"

	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNewTelegramRequiresCredentials(t *testing.T) {
	assert.Nil(t, NewTelegram("", "chat"))
	assert.Nil(t, NewTelegram("token", ""))
	assert.NotNil(t, NewTelegram("token", "chat"))
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

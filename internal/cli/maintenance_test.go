package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tmebrain/internal/config"
	"github.com/lazypower/tmebrain/internal/retention"
)

func TestPrintStats(t *testing.T) {
	oldest := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStats(&buf, &retention.Stats{
		FootprintBytes: 512 * 1024 * 1024,
		MaxBytes:       1024 * 1024 * 1024,
		History:        12345,
		Cache:          7,
		OldestHistory:  &oldest,
	})

	out := buf.String()
	assert.Contains(t, out, "512 MiB / 1.0 GiB (50.0%)")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "2026-03-09")
	assert.NotContains(t, out, "over limit")
}

func TestPrintCleanup(t *testing.T) {
	var buf bytes.Buffer
	printCleanup(&buf, &retention.CleanupResult{
		DeletedHistory: 1500,
		SizeBefore:     2048,
		SizeAfter:      1024,
		Freed:          1024,
		Cutoff:         time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	out := buf.String()
	assert.Contains(t, out, "2026-04-01")
	assert.Contains(t, out, "1,500 deleted")
	assert.Contains(t, out, "2.0 KiB -> 1.0 KiB (freed 1.0 KiB)")

	buf.Reset()
	printCleanup(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, "warn", log.GetLevel().String())

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

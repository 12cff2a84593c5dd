package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, getLogLevel("warning"))
	assert.Equal(t, slog.LevelError, getLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getLogLevel(""))
}

func TestDomainHelpersWriteStableKeys(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug")
	ctx := context.Background()

	l.LogOfferCreated(ctx, "offer-1", "entry-1", "event-1", 2, 120.5, time.Unix(0, 0).UTC())
	l.LogBulkOperation(ctx, "bulk_remove", false, 4, 3, 1)
	l.WithComponent("sweeper").ErrorWithContext(ctx, "sweep item failed", errors.New("boom"), map[string]interface{}{"offer_id": "offer-2"})

	out := buf.String()
	assert.Contains(t, out, "offer_id=offer-1")
	assert.Contains(t, out, "event_id=event-1")
	assert.Contains(t, out, "operation=bulk_remove")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "component=sweeper")
	assert.Contains(t, out, "error=boom")
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, GetDefault(), OrDefault(nil))
	custom := Discard()
	assert.Same(t, custom, OrDefault(custom))
}

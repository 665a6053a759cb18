package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogOutput swaps stdout for a pipe while fn runs.
func captureLogOutput(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fn()

	w.Close()
	os.Stdout = original

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func parseLogLine(t *testing.T, line string) map[string]any {
	t.Helper()
	line = strings.TrimSpace(line)
	require.NotEmpty(t, line, "expected log output")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	return out
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, time.RFC3339, cfg.TimeFormat)
}

func TestDefaultConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg := DefaultConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
}

func TestInit_JSONFormat(t *testing.T) {
	out := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		Log.Info().Msg("test message")
	})

	entry := parseLogLine(t, out)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "auctiond", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	out := captureLogOutput(t, func() {
		Init(Config{Level: "loud", Format: "json", TimeFormat: time.RFC3339})
		Log.Debug().Msg("hidden")
		Log.Info().Msg("shown")
	})

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestFromContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithAuctionID(ctx, 42)

	out := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		FromContext(ctx).Info().Msg("scoped")
	})

	entry := parseLogLine(t, out)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "42", entry["auction_id"])
}

func TestFromContext_Empty(t *testing.T) {
	out := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		FromContext(context.Background()).Info().Msg("plain")
	})

	entry := parseLogLine(t, out)
	assert.NotContains(t, entry, "request_id")
	assert.NotContains(t, entry, "auction_id")
	assert.Equal(t, "auctiond", entry["service"])
}

func TestAuctionAndComponent(t *testing.T) {
	out := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		Auction(7).Info().Msg("auction event")
	})
	entry := parseLogLine(t, out)
	assert.EqualValues(t, 7, entry["auction_id"])

	out = captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		Component("resolver").Info().Msg("component event")
	})
	entry = parseLogLine(t, out)
	assert.Equal(t, "resolver", entry["component"])
}

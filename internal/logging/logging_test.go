package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFromCtx(t *testing.T) {
	l := slog.New(slog.NewTextHandler(nil, nil))
	ctx := WithCtx(context.Background(), l)
	assert.Same(t, l, FromCtx(ctx))
	assert.NotNil(t, FromCtx(context.Background()))
}

package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestShortCaller(t *testing.T) {
	tests := map[string]string{
		"/Users/alex/repo/internal/platform/db/postgres.go:38": "internal/platform/db/postgres.go:38",
		"/build/src/pkg/money/money.go:12":                      "pkg/money/money.go:12",
		"/a/b/c/d/e.go:7":                                       "c/d/e.go:7",
		"/x.go:1":                                               "x.go:1",
		"":                                                      "",
	}
	for in, want := range tests {
		require.Equal(t, want, shortCaller(in), in)
	}
}

func TestTrace_IgnoresRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core).Sugar(), false)

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("gorm_trace").Len())
}

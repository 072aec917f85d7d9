package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fatflowers/paydesk/pkg/config"
)

// New builds the process logger. Production uses JSON at info level; dev adds
// debug output but keeps the same field names so log queries work in both.
func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	if !cfg.IsProd() {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		zcfg.Development = true
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.TimeKey = "time"
	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("env", string(cfg.Env))).Sugar(), nil
}

func registerSync(lc fx.Lifecycle, l *zap.SugaredLogger) {
	lc.Append(fx.StopHook(func() {
		_ = l.Sync()
	}))
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerSync),
)

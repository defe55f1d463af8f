package main

import (
	"fmt"
	stdslog "log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/offcache"
	logruslog "github.com/unkn0wn-root/offcache/log/logrus"
	sloglog "github.com/unkn0wn-root/offcache/log/slog"
	zaplog "github.com/unkn0wn-root/offcache/log/zap"
)

// newLogger returns the library logger for format and a slog logger at the
// same level for the lifecycle hooks. flush must run before exit.
func newLogger(format, level string) (log offcache.Logger, hookLog *stdslog.Logger, flush func(), err error) {
	var slvl stdslog.Level
	if err := slvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, nil, fmt.Errorf("OFFCACHE_LOG_LEVEL: %w", err)
	}
	hookLog = stdslog.New(stdslog.NewJSONHandler(os.Stderr, &stdslog.HandlerOptions{Level: slvl}))
	flush = func() {}

	switch strings.ToLower(format) {
	case "zap":
		zlvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("OFFCACHE_LOG_LEVEL: %w", err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zlvl)
		zl, err := zc.Build()
		if err != nil {
			return nil, nil, nil, err
		}
		return zaplog.New(zl), hookLog, func() { _ = zl.Sync() }, nil
	case "logrus":
		llvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("OFFCACHE_LOG_LEVEL: %w", err)
		}
		ll := logrus.New()
		ll.SetOutput(os.Stderr)
		ll.SetFormatter(&logrus.JSONFormatter{})
		ll.SetLevel(llvl)
		return logruslog.New(ll), hookLog, flush, nil
	default:
		return sloglog.New(hookLog), hookLog, flush, nil
	}
}

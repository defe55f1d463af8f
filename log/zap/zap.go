// Package zap adapts a *zap.Logger to offcache.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/offcache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ offcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names l "offcache" so entries can be told apart from the host program.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("offcache")} }

func (z Logger) Debug(msg string, f offcache.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f offcache.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f offcache.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f offcache.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

func (z Logger) log(lvl zapcore.Level, msg string, f offcache.Fields) {
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(fields(f)...)
	}
}

// fields are emitted in key order so lines are stable across runs.
func fields(f offcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

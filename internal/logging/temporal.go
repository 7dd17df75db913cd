package logging

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

var _ log.Logger = (*TemporalLogger)(nil)

// TemporalLogger routes Temporal SDK key/value logs into zap.
type TemporalLogger struct {
	s *zap.SugaredLogger
}

func NewTemporalLogger(l *zap.Logger) *TemporalLogger {
	return &TemporalLogger{s: OrNop(l).WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (t *TemporalLogger) Debug(msg string, keyvals ...interface{}) { t.s.Debugw(msg, keyvals...) }
func (t *TemporalLogger) Info(msg string, keyvals ...interface{})  { t.s.Infow(msg, keyvals...) }
func (t *TemporalLogger) Warn(msg string, keyvals ...interface{})  { t.s.Warnw(msg, keyvals...) }
func (t *TemporalLogger) Error(msg string, keyvals ...interface{}) { t.s.Errorw(msg, keyvals...) }

func (t *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{s: t.s.With(keyvals...)}
}

package events

import (
	"github.com/rs/zerolog"
)

// Tracer receives low-level pipeline diagnostics (raw frames, parse
// failures, SQL trigger decisions). The decoder and synthesizer call it
// unconditionally; whether anything gets emitted is the tracer's decision,
// which keeps environment checks out of the pipeline itself.
type Tracer interface {
	Trace(stage string, msg string, fields map[string]interface{})
}

type NullTracer struct{}

func NewNullTracer() *NullTracer {
	return &NullTracer{}
}

func (n *NullTracer) Trace(_ string, _ string, _ map[string]interface{}) {}

var _ Tracer = (*NullTracer)(nil)

// LogTracer forwards traces to a zerolog logger at the given level.
type LogTracer struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLogTracer(logger zerolog.Logger, level zerolog.Level) *LogTracer {
	return &LogTracer{logger: logger, level: level}
}

func (l *LogTracer) Trace(stage string, msg string, fields map[string]interface{}) {
	ev := l.logger.WithLevel(l.level).Str("stage", stage)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

var _ Tracer = (*LogTracer)(nil)

package hermes

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type requestIDKey struct{}

// WithRequestID attaches a request id that the logger adds to every entry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ZerologAdapter implements Logger on top of zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter builds a logger writing to w. format "console" selects the human
// readable writer, anything else emits JSON lines.
func NewZerologAdapter(w io.Writer, level, format string) *ZerologAdapter {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return &ZerologAdapter{
		logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

func (l *ZerologAdapter) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.emit(ctx, l.logger.Debug(), msg, fields)
}

func (l *ZerologAdapter) Info(ctx context.Context, msg string, fields map[string]any) {
	l.emit(ctx, l.logger.Info(), msg, fields)
}

func (l *ZerologAdapter) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.emit(ctx, l.logger.Warn(), msg, fields)
}

func (l *ZerologAdapter) Error(ctx context.Context, msg string, fields map[string]any) {
	l.emit(ctx, l.logger.Error(), msg, fields)
}

func (l *ZerologAdapter) emit(ctx context.Context, ev *zerolog.Event, msg string, fields map[string]any) {
	if ev == nil {
		return
	}
	if id := RequestID(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	ev.Fields(fields).Msg(msg)
}

type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (NoopLogger) Debug(ctx context.Context, msg string, fields map[string]any) {}
func (NoopLogger) Info(ctx context.Context, msg string, fields map[string]any)  {}
func (NoopLogger) Warn(ctx context.Context, msg string, fields map[string]any)  {}
func (NoopLogger) Error(ctx context.Context, msg string, fields map[string]any) {}

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) IncCounter(name string, value float64, labels ...Label)       {}
func (m *NoopMetrics) ObserveHistogram(name string, value float64, labels ...Label) {}
func (m *NoopMetrics) SetGauge(name string, value float64, labels ...Label)         {}

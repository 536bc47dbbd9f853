package event

import (
	"context"
	"log/slog"
)

// LogObserver writes events to a slog.Logger.
type LogObserver struct {
	logger      *slog.Logger
	showSecrets bool
}

// NewLogObserver returns an observer logging to logger (nil means slog.Default()).
// Sensitive payloads are redacted unless showSecrets is set.
func NewLogObserver(logger *slog.Logger, showSecrets bool) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger, showSecrets: showSecrets}
}

// Observe logs ev at a level chosen from its kind.
func (o *LogObserver) Observe(ctx context.Context, ev Event) {
	if !o.showSecrets {
		ev = redacted(ev)
	}
	o.logger.Log(ctx, levelFor(ev.Kind), ev.Description,
		slog.String("kind", ev.Kind.String()),
		slog.Any("payload", ev.Payload),
	)
}

func levelFor(k Kind) slog.Level {
	switch k {
	case KindWarning:
		return slog.LevelWarn
	case KindResult:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

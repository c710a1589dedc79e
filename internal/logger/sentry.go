package logger

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryHook forwards entries at or above a threshold to Sentry.
type SentryHook struct {
	levels       []logrus.Level
	flushTimeout time.Duration
}

// NewSentryHook initialises the global Sentry client and returns a hook for it.
func NewSentryHook(dsn, level string) (*SentryHook, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}

	threshold := logrus.ErrorLevel
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid sentry level %s: %w", level, err)
		}
		threshold = lvl
	}

	hook := &SentryHook{flushTimeout: 5 * time.Second}
	for _, l := range logrus.AllLevels {
		if l <= threshold {
			hook.levels = append(hook.levels, l)
		}
	}
	return hook, nil
}

func (h *SentryHook) Levels() []logrus.Level {
	return h.levels
}

func (h *SentryHook) Fire(entry *logrus.Entry) error {
	extras := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			extras[k] = err.Error()
			continue
		}
		extras[k] = v
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		if len(extras) > 0 {
			scope.SetExtras(extras)
		}
		scope.SetLevel(sentryLevel(entry.Level))
		sentry.CaptureMessage(entry.Message)

		if entry.Level <= logrus.FatalLevel {
			sentry.Flush(h.flushTimeout)
		}
	})
	return nil
}

// Flush blocks until buffered events are delivered or the timeout passes.
func (h *SentryHook) Flush() {
	sentry.Flush(h.flushTimeout)
}

func sentryLevel(lvl logrus.Level) sentry.Level {
	switch lvl {
	case logrus.TraceLevel, logrus.DebugLevel:
		return sentry.LevelDebug
	case logrus.InfoLevel:
		return sentry.LevelInfo
	case logrus.WarnLevel:
		return sentry.LevelWarning
	case logrus.ErrorLevel:
		return sentry.LevelError
	default:
		return sentry.LevelFatal
	}
}

// Package notify delivers danger alerts to the athlete or their support team.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/types"
)

// Log writes every alert to the logger. It never fails.
type Log struct {
	logger *zap.SugaredLogger
}

// NewLog creates a Log notifier.
func NewLog(logger *zap.SugaredLogger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SendAlertNotification(_ context.Context, alertType types.AlertType, title, message string) bool {
	l.logger.Warnw(title, "alert_type", alertType, "message", message)
	return true
}

// Multi fans an alert out to several notifiers concurrently. It reports
// success when at least one of them delivered.
type Multi struct {
	notifiers []interfaces.AlertNotifier
	logger    *zap.SugaredLogger
}

// NewMulti combines notifiers.
func NewMulti(logger *zap.SugaredLogger, notifiers ...interfaces.AlertNotifier) *Multi {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) SendAlertNotification(ctx context.Context, alertType types.AlertType, title, message string) bool {
	if len(m.notifiers) == 0 {
		return false
	}

	results := make([]bool, len(m.notifiers))
	var wg sync.WaitGroup
	for i, n := range m.notifiers {
		wg.Add(1)
		go func(i int, n interfaces.AlertNotifier) {
			defer wg.Done()
			results[i] = n.SendAlertNotification(ctx, alertType, title, message)
		}(i, n)
	}
	wg.Wait()

	delivered := false
	for i, ok := range results {
		if ok {
			delivered = true
			continue
		}
		m.logger.Warnw("notifier failed to deliver alert", "notifier", i, "alert_type", alertType)
	}
	return delivered
}

package background

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotHeld is returned when releasing a guarantee that was never acquired.
var ErrNotHeld = errors.New("background execution not held")

// NoopGuarantee is used when the host never suspends the process.
type NoopGuarantee struct{}

func (NoopGuarantee) Start() error { return nil }
func (NoopGuarantee) Stop() error  { return nil }

// LoggingGuarantee records acquisition and release in the log and tracks how
// long the guarantee was held. On a server the process is never suspended, so
// holding it is bookkeeping only.
type LoggingGuarantee struct {
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	held     bool
	since    time.Time
	heldTime time.Duration
}

// NewLoggingGuarantee creates a LoggingGuarantee.
func NewLoggingGuarantee(logger *zap.SugaredLogger) *LoggingGuarantee {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LoggingGuarantee{logger: logger, now: time.Now}
}

func (g *LoggingGuarantee) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil
	}
	g.held = true
	g.since = g.now()
	g.logger.Info("background execution acquired")
	return nil
}

func (g *LoggingGuarantee) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return ErrNotHeld
	}
	g.held = false
	d := g.now().Sub(g.since)
	g.heldTime += d
	g.logger.Infow("background execution released", "held_for", d)
	return nil
}

// Held reports whether the guarantee is currently acquired.
func (g *LoggingGuarantee) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// HeldTime is the total time the guarantee has been held, excluding the
// current acquisition.
func (g *LoggingGuarantee) HeldTime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heldTime
}

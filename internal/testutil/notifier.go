package testutil

import (
	"context"
	"sync"

	"github.com/chrissnell/altiguard/internal/types"
)

// Notification is one recorded alert.
type Notification struct {
	AlertType types.AlertType
	Title     string
	Message   string
}

// Notifier records every alert it is asked to send.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification

	// Result is returned from SendAlertNotification.
	Result bool
}

func (n *Notifier) SendAlertNotification(ctx context.Context, alertType types.AlertType, title, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{AlertType: alertType, Title: title, Message: message})
	return n.Result
}

// Sent returns a copy of the recorded notifications.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Guarantee counts background guarantee acquisitions and releases.
type Guarantee struct {
	mu       sync.Mutex
	starts   int
	stops    int
	StartErr error
}

func (g *Guarantee) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StartErr != nil {
		return g.StartErr
	}
	g.starts++
	return nil
}

func (g *Guarantee) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	return nil
}

// Counts returns the number of Start and Stop calls.
func (g *Guarantee) Counts() (starts, stops int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts, g.stops
}

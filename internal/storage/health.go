package storage

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/types"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthData is the last known write status of a backend.
type HealthData struct {
	LastCheck time.Time `json:"last_check" msgpack:"last_check"`
	Status    string    `json:"status" msgpack:"status"`
	Message   string    `json:"message,omitempty" msgpack:"message"`
	Error     string    `json:"error,omitempty" msgpack:"error"`
}

// HealthManager keeps backend health in memory.
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthData
	now    func() time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthData),
		now:    time.Now,
	}
}

// Record stores the outcome of one operation against a backend.
func (hm *HealthManager) Record(backend, op string, err error) {
	h := HealthData{LastCheck: hm.now(), Status: StatusHealthy, Message: op}
	if err != nil {
		h.Status = StatusUnhealthy
		h.Error = err.Error()
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[backend] = h
}

// GetHealth retrieves the health status for a specific storage backend
func (hm *HealthManager) GetHealth(backend string) (HealthData, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[backend]
	return h, ok
}

// GetAllHealth returns a copy of every backend's status.
func (hm *HealthManager) GetAllHealth() map[string]HealthData {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]HealthData, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether the backend's last operation succeeded within maxAge.
func (hm *HealthManager) IsHealthy(backend string, maxAge time.Duration) bool {
	h, ok := hm.GetHealth(backend)
	if !ok {
		return false
	}
	if hm.now().Sub(h.LastCheck) > maxAge {
		return false
	}
	return h.Status == StatusHealthy
}

// Monitored wraps a Store and records the outcome of every write.
type Monitored struct {
	interfaces.Store
	name   string
	health *HealthManager
}

// NewMonitored wraps store, reporting to health under name.
func NewMonitored(name string, store interfaces.Store, health *HealthManager) *Monitored {
	return &Monitored{Store: store, name: name, health: health}
}

func (m *Monitored) Insert(ctx context.Context, p types.TrackPoint) (int64, error) {
	id, err := m.Store.Insert(ctx, p)
	m.health.Record(m.name, "insert", err)
	return id, err
}

func (m *Monitored) CreateSession(ctx context.Context, s types.Session) error {
	err := m.Store.CreateSession(ctx, s)
	m.health.Record(m.name, "create session", err)
	return err
}

func (m *Monitored) FinishSession(ctx context.Context, summary types.SessionSummary) error {
	err := m.Store.FinishSession(ctx, summary)
	m.health.Record(m.name, "finish session", err)
	return err
}

func (m *Monitored) DeleteBySession(ctx context.Context, sessionID string) error {
	err := m.Store.DeleteBySession(ctx, sessionID)
	m.health.Record(m.name, "delete points", err)
	return err
}

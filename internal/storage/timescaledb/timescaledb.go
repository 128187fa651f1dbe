// Package timescaledb is the server-side track store backed by a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chrissnell/altiguard/internal/database"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/config"
)

// Storage holds the connection and stream state for a TimescaleDB backend
type Storage struct {
	db       *gorm.DB
	logger   *zap.SugaredLogger
	streamer *storage.Streamer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to TimescaleDB and prepares the schema. With c.Listen set, a
// LISTEN/NOTIFY listener wakes point streams for writes made by any process.
func New(ctx context.Context, c config.TimescaleDBData, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := database.CreateConnection(c.ConnectionString)
	if err != nil {
		return nil, err
	}

	t := &Storage{
		db:       db,
		logger:   logger,
		streamer: storage.NewStreamer(logger),
	}

	for _, step := range schema(c.Listen) {
		logger.Infof("creating %s...", step.name)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			t.closeDB()
			return nil, fmt.Errorf("could not create %s: %w", step.name, err)
		}
	}

	if c.Listen {
		lctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		l := newListener(pgxDialer(c.ConnectionString), t.streamer.Notify, logger)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			l.run(lctx)
		}()
	}

	return t, nil
}

func (t *Storage) Insert(ctx context.Context, p types.TrackPoint) (int64, error) {
	p.ID = 0
	if err := t.db.WithContext(ctx).Create(&p).Error; err != nil {
		return 0, fmt.Errorf("insert track point: %w", err)
	}
	t.streamer.Notify(p.SessionID)
	return p.ID, nil
}

func (t *Storage) StreamBySession(ctx context.Context, sessionID string) (<-chan []types.TrackPoint, error) {
	return t.streamer.Stream(ctx, sessionID, func(ctx context.Context) ([]types.TrackPoint, error) {
		return t.Points(ctx, sessionID)
	})
}

// Points returns the session's points in insertion order.
func (t *Storage) Points(ctx context.Context, sessionID string) ([]types.TrackPoint, error) {
	points := []types.TrackPoint{}
	err := t.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("query track points: %w", err)
	}
	return points, nil
}

func (t *Storage) DeleteBySession(ctx context.Context, sessionID string) error {
	err := t.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.TrackPoint{}).Error
	if err != nil {
		return fmt.Errorf("delete track points: %w", err)
	}
	t.streamer.Notify(sessionID)
	return nil
}

func (t *Storage) CreateSession(ctx context.Context, sess types.Session) error {
	if err := t.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (t *Storage) FinishSession(ctx context.Context, summary types.SessionSummary) error {
	res := t.db.WithContext(ctx).
		Model(&types.Session{}).
		Where("id = ?", summary.SessionID).
		Updates(map[string]interface{}{
			"ended_at":           summary.EndedAt,
			"status":             summary.Status,
			"baseline_altitude":  summary.BaselineAltitude,
			"point_count":        summary.PointCount,
			"gain":               summary.Gain,
			"loss":               summary.Loss,
			"max_altitude":       summary.MaxAltitude,
			"min_altitude":       summary.MinAltitude,
			"final_rel_altitude": summary.FinalRelAltitude,
			"avg_vertical":       summary.AvgVertical,
			"max_abs_vertical":   summary.MaxAbsVertical,
			"vertical_stddev":    summary.VerticalStdDev,
			"alert_count":        summary.AlertCount,
		})
	if res.Error != nil {
		return fmt.Errorf("finish session %s: %w", summary.SessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", summary.SessionID, storage.ErrNotFound)
	}
	return nil
}

func (t *Storage) GetSession(ctx context.Context, id string) (types.Session, error) {
	var sess types.Session
	err := t.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session, newest first.
func (t *Storage) ListSessions(ctx context.Context) ([]types.Session, error) {
	sessions := []types.Session{}
	if err := t.db.WithContext(ctx).Order("started_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Close stops the listener and closes the connection pool.
func (t *Storage) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	return t.closeDB()
}

func (t *Storage) closeDB() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

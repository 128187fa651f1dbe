// Package sqlite is the embedded on-device track store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/internal/types"
)

// Store persists sessions and track points in a single SQLite file.
type Store struct {
	db       *sql.DB
	logger   *zap.SugaredLogger
	streamer *storage.Streamer
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection keeps inserts ordered
	// and avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		streamer: storage.NewStreamer(logger),
	}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infow("sqlite track store ready", "path", path)
	return s, nil
}

const pointColumns = `session_id, time, lat, lon, has_location, altitude,
	accel_x, accel_y, accel_z, v_vertical, v_horizontal, v_total,
	gain, loss, rel_altitude, avg_vertical, danger, alert_type`

func (s *Store) Insert(ctx context.Context, p types.TrackPoint) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO track_points (`+pointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Timestamp.UnixNano(), p.Lat, p.Lon, p.HasLocation, p.Altitude,
		p.AccelX, p.AccelY, p.AccelZ, p.VVertical, p.VHorizontal, p.VTotal,
		p.Gain, p.Loss, p.RelAltitude, p.AvgVertical, p.Danger, string(p.AlertType),
	)
	if err != nil {
		return 0, fmt.Errorf("insert track point: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert track point: %w", err)
	}

	s.streamer.Notify(p.SessionID)
	return id, nil
}

func (s *Store) StreamBySession(ctx context.Context, sessionID string) (<-chan []types.TrackPoint, error) {
	return s.streamer.Stream(ctx, sessionID, func(ctx context.Context) ([]types.TrackPoint, error) {
		return s.Points(ctx, sessionID)
	})
}

// Points returns the session's points in insertion order.
func (s *Store) Points(ctx context.Context, sessionID string) ([]types.TrackPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, `+pointColumns+` FROM track_points WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query track points: %w", err)
	}
	defer rows.Close()

	points := []types.TrackPoint{}
	for rows.Next() {
		var (
			p     types.TrackPoint
			ts    int64
			alert string
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &ts, &p.Lat, &p.Lon, &p.HasLocation, &p.Altitude,
			&p.AccelX, &p.AccelY, &p.AccelZ, &p.VVertical, &p.VHorizontal, &p.VTotal,
			&p.Gain, &p.Loss, &p.RelAltitude, &p.AvgVertical, &p.Danger, &alert); err != nil {
			return nil, fmt.Errorf("scan track point: %w", err)
		}
		p.Timestamp = time.Unix(0, ts).UTC()
		p.AlertType = types.AlertType(alert)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM track_points WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete track points: %w", err)
	}
	s.streamer.Notify(sessionID)
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess types.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, status, baseline_altitude) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UnixNano(), sess.Status, sess.BaselineAltitude)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) FinishSession(ctx context.Context, summary types.SessionSummary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, status = ?, baseline_altitude = ?, point_count = ?,
			gain = ?, loss = ?, max_altitude = ?, min_altitude = ?, final_rel_altitude = ?,
			avg_vertical = ?, max_abs_vertical = ?, vertical_stddev = ?, alert_count = ?
		WHERE id = ?`,
		summary.EndedAt.UnixNano(), summary.Status, summary.BaselineAltitude, summary.PointCount,
		summary.Gain, summary.Loss, summary.MaxAltitude, summary.MinAltitude, summary.FinalRelAltitude,
		summary.AvgVertical, summary.MaxAbsVertical, summary.VerticalStdDev, summary.AlertCount,
		summary.SessionID)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", summary.SessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", summary.SessionID, storage.ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, started_at, ended_at, status, baseline_altitude, point_count,
	gain, loss, max_altitude, min_altitude, final_rel_altitude, avg_vertical,
	max_abs_vertical, vertical_stddev, alert_count`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (types.Session, error) {
	var (
		sess           types.Session
		started, ended int64
	)
	err := row.Scan(&sess.ID, &started, &ended, &sess.Status, &sess.BaselineAltitude, &sess.PointCount,
		&sess.Gain, &sess.Loss, &sess.MaxAltitude, &sess.MinAltitude, &sess.FinalRelAltitude,
		&sess.AvgVertical, &sess.MaxAbsVertical, &sess.VerticalStdDev, &sess.AlertCount)
	if err != nil {
		return sess, err
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended != 0 {
		sess.EndedAt = time.Unix(0, ended).UTC()
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []types.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

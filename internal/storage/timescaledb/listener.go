package timescaledb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const listenRetryDelay = 5 * time.Second

// notificationConn is the part of *pgx.Conn the listener needs.
type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type dialer func(ctx context.Context) (notificationConn, error)

func pgxDialer(connectionString string) dialer {
	return func(ctx context.Context) (notificationConn, error) {
		conn, err := pgx.Connect(ctx, connectionString)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// listener holds a dedicated connection in LISTEN mode and forwards each
// notification payload (a session id) to onNotify.
type listener struct {
	dial       dialer
	onNotify   func(sessionID string)
	logger     *zap.SugaredLogger
	retryDelay time.Duration
}

func newListener(dial dialer, onNotify func(string), logger *zap.SugaredLogger) *listener {
	return &listener{
		dial:       dial,
		onNotify:   onNotify,
		logger:     logger,
		retryDelay: listenRetryDelay,
	}
}

// run reconnects until ctx is done.
func (l *listener) run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warnw("track point listener disconnected", "error", err, "retry_in", l.retryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *listener) listen(ctx context.Context) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Debugw("listening for track point changes", "channel", notifyChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != "" {
			l.onNotify(n.Payload)
		}
	}
}

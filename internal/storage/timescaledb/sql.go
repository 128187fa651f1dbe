package timescaledb

// notifyChannel is the LISTEN/NOTIFY channel carrying the session id of every
// changed track point.
const notifyChannel = "altiguard_track_points"

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;`

const createSessionsTableSQL = `CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	started_at         TIMESTAMPTZ NOT NULL,
	ended_at           TIMESTAMPTZ,
	status             TEXT NOT NULL,
	baseline_altitude  DOUBLE PRECISION NOT NULL DEFAULT 0,
	point_count        INTEGER NOT NULL DEFAULT 0,
	gain               DOUBLE PRECISION NOT NULL DEFAULT 0,
	loss               DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_altitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_altitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_rel_altitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_vertical       DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_abs_vertical   DOUBLE PRECISION NOT NULL DEFAULT 0,
	vertical_stddev    DOUBLE PRECISION NOT NULL DEFAULT 0,
	alert_count        INTEGER NOT NULL DEFAULT 0
);`

// The hypertable partitions on time, so time must be part of the primary key.
const createTrackPointsTableSQL = `CREATE TABLE IF NOT EXISTS track_points (
	id           BIGSERIAL,
	session_id   TEXT NOT NULL,
	time         TIMESTAMPTZ NOT NULL,
	lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
	lon          DOUBLE PRECISION NOT NULL DEFAULT 0,
	has_location BOOLEAN NOT NULL DEFAULT FALSE,
	altitude     DOUBLE PRECISION NOT NULL,
	accel_x      DOUBLE PRECISION NOT NULL DEFAULT 0,
	accel_y      DOUBLE PRECISION NOT NULL DEFAULT 0,
	accel_z      DOUBLE PRECISION NOT NULL DEFAULT 0,
	v_vertical   DOUBLE PRECISION NOT NULL DEFAULT 0,
	v_horizontal DOUBLE PRECISION NOT NULL DEFAULT 0,
	v_total      DOUBLE PRECISION NOT NULL DEFAULT 0,
	gain         DOUBLE PRECISION NOT NULL DEFAULT 0,
	loss         DOUBLE PRECISION NOT NULL DEFAULT 0,
	rel_altitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_vertical DOUBLE PRECISION NOT NULL DEFAULT 0,
	danger       BOOLEAN NOT NULL DEFAULT FALSE,
	alert_type   TEXT NOT NULL DEFAULT 'NONE',
	PRIMARY KEY (id, time)
);`

const createHypertableSQL = `SELECT create_hypertable('track_points', 'time', chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE, migrate_data => TRUE);`

const createSessionIndexSQL = `CREATE INDEX IF NOT EXISTS idx_track_points_session ON track_points (session_id, id);`

const createNotifyFunctionSQL = `CREATE OR REPLACE FUNCTION altiguard_notify_track_points() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('` + notifyChannel + `', OLD.session_id);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('` + notifyChannel + `', NEW.session_id);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

const dropNotifyTriggerSQL = `DROP TRIGGER IF EXISTS track_points_notify ON track_points;`

const createNotifyTriggerSQL = `CREATE TRIGGER track_points_notify
	AFTER INSERT OR DELETE ON track_points
	FOR EACH ROW EXECUTE FUNCTION altiguard_notify_track_points();`

type schemaStep struct {
	name string
	sql  string
}

// schema returns the ordered statements that prepare a database. The notify
// trigger is only installed when cross-process streaming is wanted.
func schema(listen bool) []schemaStep {
	steps := []schemaStep{
		{"TimescaleDB extension", createExtensionSQL},
		{"sessions table", createSessionsTableSQL},
		{"track_points table", createTrackPointsTableSQL},
		{"hypertable", createHypertableSQL},
		{"session index", createSessionIndexSQL},
	}
	if listen {
		steps = append(steps,
			schemaStep{"notify function", createNotifyFunctionSQL},
			schemaStep{"drop notify trigger", dropNotifyTriggerSQL},
			schemaStep{"notify trigger", createNotifyTriggerSQL},
		)
	}
	return steps
}

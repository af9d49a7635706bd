package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/syndy/cardscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	step           TEXT NOT NULL,
	transaction_id TEXT,
	contact        TEXT NOT NULL,
	insight        TEXT NOT NULL,
	status         TEXT NOT NULL,
	error          TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_step ON sessions(step);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	contactJSON, insightJSON, err := marshalRecords(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, step, transaction_id, contact, insight, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			step = excluded.step,
			transaction_id = excluded.transaction_id,
			contact = excluded.contact,
			insight = excluded.insight,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		sess.ID, string(sess.Step), sess.TransactionID, contactJSON, insightJSON,
		string(sess.Processing), sess.Error, sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, step, transaction_id, contact, insight, status, error, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)

	sess, err := scanSession(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, step, transaction_id, contact, insight, status, error, created_at, updated_at
		FROM sessions WHERE 1=1`
	var args []any

	if filter.Step != "" {
		query += ` AND step = ?`
		args = append(args, string(filter.Step))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func marshalRecords(sess model.Session) (contact, insight string, err error) {
	c, err := json.Marshal(sess.Contact)
	if err != nil {
		return "", "", err
	}
	i, err := json.Marshal(sess.Insight)
	if err != nil {
		return "", "", err
	}
	return string(c), string(i), nil
}

// scanSession reads one session row via the given scan function, shared by
// single-row and multi-row queries.
func scanSession(scan func(dest ...any) error) (*model.Session, error) {
	var (
		sess                     model.Session
		step, status             string
		txID, errMsg             sql.NullString
		contactJSON, insightJSON string
	)
	if err := scan(&sess.ID, &step, &txID, &contactJSON, &insightJSON, &status, &errMsg,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}

	sess.Step = model.Step(step)
	sess.Processing = model.ProcessingStatus(status)
	sess.TransactionID = txID.String
	sess.Error = errMsg.String

	if err := json.Unmarshal([]byte(contactJSON), &sess.Contact); err != nil {
		return nil, eris.Wrap(err, "unmarshal contact")
	}
	if err := json.Unmarshal([]byte(insightJSON), &sess.Insight); err != nil {
		return nil, eris.Wrap(err, "unmarshal insight")
	}
	return &sess, nil
}

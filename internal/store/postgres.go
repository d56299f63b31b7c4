package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compustore/backend/internal/models"
)

// Postgres is the durable Store backed by a pgx pool. Per-user serialization
// comes from SELECT ... FOR UPDATE on the session row; CommitInteraction uses
// a conditional update as its commit point, and AssignStaff locks the session
// row and the roster inside a single transaction.
type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Postgres{Pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate is idempotent: every statement is a no-op when the object already
// exists, including the processed column added to pre-existing event tables.
func (s *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			actor TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`ALTER TABLE events ADD COLUMN IF NOT EXISTS processed BOOLEAN NOT NULL DEFAULT FALSE`,
		`CREATE TABLE IF NOT EXISTS support_staff (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			phone_number TEXT NOT NULL,
			is_free BOOLEAN NOT NULL DEFAULT TRUE,
			assigned_user TEXT
		)`,
	}
	for _, q := range stmts {
		if _, err := s.Pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) Close() {
	s.Pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) GetSession(ctx context.Context, userID string) (models.SessionState, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, `SELECT state FROM sessions WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SessionState{}, ErrNotFound
		}
		return models.SessionState{}, err
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.SessionState{}, err
	}
	return state, nil
}

func (s *Postgres) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT user_id FROM sessions ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateSession(ctx context.Context, userID string, create bool, fn func(*models.SessionState) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		state, err := lockSession(ctx, tx, userID, create)
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		return saveSession(ctx, tx, userID, state)
	})
}

// lockSession loads the user's document under a row lock, inserting the
// default document first when create is set and no row exists yet.
func lockSession(ctx context.Context, tx pgx.Tx, userID string, create bool) (models.SessionState, error) {
	var raw []byte
	err := tx.QueryRow(ctx, `SELECT state FROM sessions WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		if !create {
			return models.SessionState{}, ErrNotFound
		}
		state := models.NewSessionState(userID)
		b, merr := json.Marshal(state)
		if merr != nil {
			return models.SessionState{}, merr
		}
		// ON CONFLICT covers the first-contact race: if another writer
		// inserted between our SELECT and here, re-lock their row.
		ct, ierr := tx.Exec(ctx,
			`INSERT INTO sessions (user_id, state) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
			userID, b)
		if ierr != nil {
			return models.SessionState{}, ierr
		}
		if ct.RowsAffected() == 1 {
			return state, nil
		}
		err = tx.QueryRow(ctx, `SELECT state FROM sessions WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw)
	}
	if err != nil {
		return models.SessionState{}, err
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.SessionState{}, err
	}
	return state, nil
}

func saveSession(ctx context.Context, tx pgx.Tx, userID string, state models.SessionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE sessions SET state = $1, updated_at = NOW() WHERE user_id = $2`, b, userID)
	return err
}

func (s *Postgres) AppendEvent(ctx context.Context, ev models.Event) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO events (user_id, ts, actor, payload) VALUES ($1, $2, $3, $4) RETURNING id`,
		ev.UserID, ev.Timestamp, ev.Actor, ev.Payload).Scan(&id)
	return id, err
}

func (s *Postgres) UnprocessedEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, user_id, ts, actor, payload, processed FROM events WHERE processed = FALSE ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Timestamp, &ev.Actor, &ev.Payload, &ev.Processed); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkEventProcessed(ctx context.Context, eventID int64) (bool, error) {
	ct, err := s.Pool.Exec(ctx,
		`UPDATE events SET processed = TRUE WHERE id = $1 AND processed = FALSE`, eventID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Postgres) CommitInteraction(ctx context.Context, eventID int64, userID string, in models.Interaction) (bool, error) {
	committed := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx,
			`UPDATE events SET processed = TRUE WHERE id = $1 AND processed = FALSE`, eventID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// Another run already folded this event in.
			return nil
		}
		state, err := lockSession(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		state.InteractionHistory = append(state.InteractionHistory, in)
		if err := saveSession(ctx, tx, userID, state); err != nil {
			return err
		}
		committed = true
		return nil
	})
	return committed, err
}

func scanStaff(rows pgx.Rows) ([]models.StaffMember, error) {
	defer rows.Close()
	var out []models.StaffMember
	for rows.Next() {
		var m models.StaffMember
		if err := rows.Scan(&m.ID, &m.Name, &m.PhoneNumber, &m.IsFree, &m.AssignedUser); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) ListStaff(ctx context.Context) ([]models.StaffMember, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, name, phone_number, is_free, COALESCE(assigned_user, '') FROM support_staff ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return scanStaff(rows)
}

func (s *Postgres) GetStaffByName(ctx context.Context, name string) (models.StaffMember, error) {
	var m models.StaffMember
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, phone_number, is_free, COALESCE(assigned_user, '') FROM support_staff WHERE name = $1`,
		name).Scan(&m.ID, &m.Name, &m.PhoneNumber, &m.IsFree, &m.AssignedUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StaffMember{}, ErrNotFound
		}
		return models.StaffMember{}, err
	}
	return m, nil
}

func (s *Postgres) AddStaff(ctx context.Context, name, phoneNumber string) (models.StaffMember, error) {
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO support_staff (name, phone_number, is_free) VALUES ($1, $2, TRUE)
		 ON CONFLICT (name) DO NOTHING RETURNING id`,
		name, phoneNumber).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StaffMember{}, ErrConflict
		}
		return models.StaffMember{}, err
	}
	return models.StaffMember{ID: id, Name: name, PhoneNumber: phoneNumber, IsFree: true}, nil
}

func (s *Postgres) DeleteStaff(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var isFree bool
		err := tx.QueryRow(ctx, `SELECT is_free FROM support_staff WHERE name = $1 FOR UPDATE`, name).Scan(&isFree)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !isFree {
			return ErrBusy
		}
		_, err = tx.Exec(ctx, `DELETE FROM support_staff WHERE name = $1`, name)
		return err
	})
}

func (s *Postgres) AssignStaff(ctx context.Context, userID string, pick func([]models.StaffMember) (models.StaffAssignment, int64, error)) (models.StaffAssignment, bool, error) {
	var out models.StaffAssignment
	skipped := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		state, err := lockSession(ctx, tx, userID, false)
		if err != nil {
			return err
		}
		if !state.AssignedStaff.IsZero() {
			out = state.AssignedStaff
			skipped = true
			return nil
		}

		rows, err := tx.Query(ctx,
			`SELECT id, name, phone_number, is_free, COALESCE(assigned_user, '') FROM support_staff ORDER BY id ASC FOR UPDATE`)
		if err != nil {
			return err
		}
		pool, err := scanStaff(rows)
		if err != nil {
			return err
		}

		assignment, claimID, err := pick(pool)
		if err != nil {
			return err
		}
		if claimID != 0 {
			// The rows are locked, so the claim cannot lose a race; the
			// roster write and the session write commit together.
			if _, err := tx.Exec(ctx,
				`UPDATE support_staff SET is_free = FALSE, assigned_user = $1 WHERE id = $2`,
				userID, claimID); err != nil {
				return err
			}
		}

		state.AssignedStaff = assignment
		out = assignment
		return saveSession(ctx, tx, userID, state)
	})
	return out, skipped, err
}

func (s *Postgres) ReleaseStaffRow(ctx context.Context, staffID int64) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE support_staff SET is_free = TRUE, assigned_user = NULL WHERE id = $1`, staffID)
	return err
}

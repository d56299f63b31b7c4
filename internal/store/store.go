package store

import (
	"context"
	"errors"

	"github.com/compustore/backend/internal/models"
)

var (
	// ErrNotFound is returned when a session or staff row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a roster insert collides on name.
	ErrConflict = errors.New("already exists")
	// ErrBusy is returned when a roster delete targets an assigned member.
	ErrBusy = errors.New("staff member is busy")
)

// Store is the single authoritative state store: one sessions table keyed by
// user_id holding the serialized document, one append-only event log with a
// processed flag, and one support staff roster.
//
// Concurrency contract:
//   - UpdateSession serializes all mutations of one user's document;
//     different users proceed in parallel.
//   - CommitInteraction appends to a session's history and flips the source
//     event's processed flag as one atomic unit. It reports false without
//     side effects when the event was already processed, which makes it the
//     commit point racing reconciler runs contend on.
//   - AssignStaff reads the roster and writes both the claimed row and the
//     session assignment in one atomic unit, so two concurrent assignments
//     can never take the same row and a claimed row is never visible
//     without its session assignment.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	// Sessions.
	GetSession(ctx context.Context, userID string) (models.SessionState, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	// UpdateSession runs fn on the user's document under the per-user write
	// lock and persists the result. With create set, a missing session is
	// initialized with the default document before fn runs; otherwise a
	// missing session yields ErrNotFound. An error from fn aborts the write.
	UpdateSession(ctx context.Context, userID string, create bool, fn func(*models.SessionState) error) error

	// Event log.
	AppendEvent(ctx context.Context, ev models.Event) (int64, error)
	UnprocessedEvents(ctx context.Context) ([]models.Event, error)
	// MarkEventProcessed conditionally flips the processed flag. It reports
	// whether this call performed the flip.
	MarkEventProcessed(ctx context.Context, eventID int64) (bool, error)
	// CommitInteraction atomically appends in to the user's history (creating
	// the session on first contact) and marks the event processed. It reports
	// false when the event was already processed; the history is untouched in
	// that case.
	CommitInteraction(ctx context.Context, eventID int64, userID string, in models.Interaction) (bool, error)

	// Staff roster.
	ListStaff(ctx context.Context) ([]models.StaffMember, error)
	GetStaffByName(ctx context.Context, name string) (models.StaffMember, error)
	AddStaff(ctx context.Context, name, phoneNumber string) (models.StaffMember, error)
	// DeleteStaff removes a roster row. It fails with ErrBusy while the
	// member is assigned; the busy check and the delete are atomic.
	DeleteStaff(ctx context.Context, name string) error
	// AssignStaff writes an assignment into the user's session. The roster
	// and the session commit as one atomic unit: pick runs on roster rows
	// locked for that unit, and when it returns a non-zero staff id that row
	// is marked busy for userID alongside the session write. A session that
	// already holds an assignment is returned unchanged with skipped set and
	// pick is not called. A missing session yields ErrNotFound.
	AssignStaff(ctx context.Context, userID string, pick func(pool []models.StaffMember) (models.StaffAssignment, int64, error)) (models.StaffAssignment, bool, error)
	// ReleaseStaffRow clears the busy flag and assignment of a row.
	ReleaseStaffRow(ctx context.Context, staffID int64) error
}

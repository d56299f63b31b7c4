package store

import (
	"context"
	"os"
	"testing"

	"github.com/compustore/backend/internal/models"
)

// Integration tests run only when TEST_DATABASE_URL points at a disposable
// database. They exercise the same contract the memory tests cover.

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pg, err := NewPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pg.Close)
	return pg
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	pg := newTestPostgres(t)
	dsn := os.Getenv("TEST_DATABASE_URL")

	again, err := NewPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	again.Close()

	if err := pg.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestPostgresAssignStaffRoundTrip(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()

	userID := "assign-it@x.com"
	if err := pg.UpdateSession(ctx, userID, true, func(*models.SessionState) error { return nil }); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if _, err := pg.AddStaff(ctx, "Frank", "555-0104"); err != nil && err != ErrConflict {
		t.Fatalf("add staff: %v", err)
	}

	pick := func(pool []models.StaffMember) (models.StaffAssignment, int64, error) {
		for _, m := range pool {
			if m.IsFree {
				return models.StaffAssignment{Name: m.Name, PhoneNumber: m.PhoneNumber, Status: models.StaffStatusAvailable}, m.ID, nil
			}
		}
		return models.StaffAssignment{Name: pool[0].Name, PhoneNumber: pool[0].PhoneNumber, Status: models.StaffStatusQueued}, 0, nil
	}

	assignment, skipped, err := pg.AssignStaff(ctx, userID, pick)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if skipped {
		t.Fatalf("expected a fresh assignment")
	}

	state, err := pg.GetSession(ctx, userID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if state.AssignedStaff != assignment {
		t.Fatalf("session and result disagree: %+v vs %+v", state.AssignedStaff, assignment)
	}

	if assignment.Status == models.StaffStatusAvailable {
		got, err := pg.GetStaffByName(ctx, assignment.Name)
		if err != nil {
			t.Fatalf("get staff: %v", err)
		}
		if got.IsFree || got.AssignedUser != userID {
			t.Fatalf("claimed row must be busy for %s, got %+v", userID, got)
		}
	}

	_, skipped, err = pg.AssignStaff(ctx, userID, pick)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if !skipped {
		t.Fatalf("expected the second assignment to skip")
	}
}

func TestPostgresCommitInteractionRoundTrip(t *testing.T) {
	pg := newTestPostgres(t)
	ctx := context.Background()

	id, err := pg.AppendEvent(ctx, models.Event{UserID: "it@x.com", Timestamp: "t1", Actor: "user", Payload: `{"parts":[{"text":"Hi"}]}`})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}

	in := models.Interaction{Action: models.ActionUserQuery, Timestamp: "t1", Query: "Hi"}
	committed, err := pg.CommitInteraction(ctx, id, "it@x.com", in)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !committed {
		t.Fatalf("expected first commit to win")
	}

	committed, err = pg.CommitInteraction(ctx, id, "it@x.com", in)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if committed {
		t.Fatalf("expected second commit to be a no-op")
	}

	state, err := pg.GetSession(ctx, "it@x.com")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	found := 0
	for _, entry := range state.InteractionHistory {
		if entry.Timestamp == "t1" && entry.Query == "Hi" {
			found++
		}
	}
	if found == 0 {
		t.Fatalf("expected interaction persisted, history: %+v", state.InteractionHistory)
	}
}

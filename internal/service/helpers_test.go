package service

import (
	"context"
	"testing"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// seedSession creates the default document for a user so tool operations
// that require an existing session can run.
func seedSession(t *testing.T, st store.Store, userID string) {
	t.Helper()
	err := st.UpdateSession(context.Background(), userID, true, func(state *models.SessionState) error {
		return nil
	})
	if err != nil {
		t.Fatalf("seed session for %s: %v", userID, err)
	}
}

func mustCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	if got := ErrorCode(err); got != want {
		t.Fatalf("expected code %s, got %s (%v)", want, got, err)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// Sessions exposes the session document operations invoked by the
// conversational layer and the admin surface.
type Sessions struct {
	Store store.Store
}

func (s *Sessions) Get(ctx context.Context, userID string) (models.SessionState, error) {
	state, err := s.Store.GetSession(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.SessionState{}, notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
		}
		return models.SessionState{}, err
	}
	return state, nil
}

// MergeInteractions appends interactions to the user's history in the order
// given. First contact creates the default document, so the merge never
// fails on a missing session. Deduplication is the reconciler's job; the
// merge itself never reorders or drops entries.
func (s *Sessions) MergeInteractions(ctx context.Context, userID string, interactions []models.Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	return s.Store.UpdateSession(ctx, userID, true, func(state *models.SessionState) error {
		state.InteractionHistory = append(state.InteractionHistory, interactions...)
		return nil
	})
}

func (s *Sessions) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.Store.ListUserIDs(ctx)
}

// ClearInteractionHistory empties a user's history. Admin-only.
func (s *Sessions) ClearInteractionHistory(ctx context.Context, userID string) error {
	err := s.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		state.InteractionHistory = []models.Interaction{}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// Tasks manages the per-user pending task queue. The queue is FIFO: tasks
// are appended on interruption and the oldest matching task is resumed
// first. Duplicates are tolerated; each copy is removable independently.
type Tasks struct {
	Store store.Store
}

func (t *Tasks) Add(ctx context.Context, userID string, task models.PendingTask) error {
	err := t.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		state.PendingTasks = append(state.PendingTasks, task)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

// Remove deletes every task whose type and context key/value match exactly.
// Removing zero tasks is not an error; the removed count is returned.
func (t *Tasks) Remove(ctx context.Context, userID, taskType, contextKey, contextValue string) (int, error) {
	removed := 0
	err := t.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		remaining := state.PendingTasks[:0]
		for _, task := range state.PendingTasks {
			if task.Type == taskType && task.Context[contextKey] == contextValue {
				removed++
				continue
			}
			remaining = append(remaining, task)
		}
		state.PendingTasks = remaining
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return removed, err
}

// Next returns the oldest pending task whose type is in handledTypes; with
// no filter it returns the head of the queue. The second result reports
// whether a task was found.
func (t *Tasks) Next(ctx context.Context, userID string, handledTypes ...string) (models.PendingTask, bool, error) {
	state, err := t.Store.GetSession(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PendingTask{}, false, notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
		}
		return models.PendingTask{}, false, err
	}
	for _, task := range state.PendingTasks {
		if len(handledTypes) == 0 {
			return task, true, nil
		}
		for _, ht := range handledTypes {
			if task.Type == ht {
				return task, true, nil
			}
		}
	}
	return models.PendingTask{}, false, nil
}

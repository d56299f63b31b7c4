package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// Staff arbitrates the support specialist pool. Assignment is exclusive:
// the store commits the roster claim and the session write as one atomic
// unit, so two users can never claim the same free specialist and a claimed
// row is never left behind without its session assignment.
type Staff struct {
	Store  store.Store
	Logger zerolog.Logger
}

// AssignmentResult reports the outcome of AssignStaff. Skipped is set when
// the session already had a specialist; Assignment then holds the existing
// record.
type AssignmentResult struct {
	Skipped    bool
	Assignment models.StaffAssignment
}

// ReleaseResult reports the outcome of Release. AlreadyFree is a no-op
// outcome, not an error.
type ReleaseResult struct {
	AlreadyFree bool
	Staff       models.StaffMember
}

// Assign attaches a specialist to the user's session. A free specialist is
// picked uniformly at random and claimed; when everyone is busy a random
// specialist is assigned with status "queued" without touching their roster
// row, since they are still working another case. The claim and the session
// write commit together, so retrying after a timeout is safe: the second
// call observes the first one's assignment and skips.
func (s *Staff) Assign(ctx context.Context, userID string) (AssignmentResult, error) {
	assignment, skipped, err := s.Store.AssignStaff(ctx, userID, s.pick)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AssignmentResult{}, notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
		}
		return AssignmentResult{}, err
	}
	return AssignmentResult{Skipped: skipped, Assignment: assignment}, nil
}

// pick chooses the roster row for a new assignment. It runs on rows the
// store has locked for the assignment's transaction; a zero claim id means
// no row changes hands.
func (s *Staff) pick(pool []models.StaffMember) (models.StaffAssignment, int64, error) {
	if len(pool) == 0 {
		return models.StaffAssignment{}, 0, &Error{Code: CodeNoStaffAvailable, Message: "Could not find any support staff to assign."}
	}

	var free []models.StaffMember
	for _, m := range pool {
		if m.IsFree {
			free = append(free, m)
		}
	}
	if len(free) == 0 {
		busy := pool[rand.Intn(len(pool))]
		return models.StaffAssignment{
			Name:        busy.Name,
			PhoneNumber: busy.PhoneNumber,
			Status:      models.StaffStatusQueued,
		}, 0, nil
	}

	p := free[rand.Intn(len(free))]
	return models.StaffAssignment{
		Name:        p.Name,
		PhoneNumber: p.PhoneNumber,
		Status:      models.StaffStatusAvailable,
	}, p.ID, nil
}

// Release frees a specialist by name and clears the assignment from the
// session they were attached to. A missing session is logged as an
// inconsistency and the roster row is freed anyway.
func (s *Staff) Release(ctx context.Context, staffName string) (ReleaseResult, error) {
	member, err := s.Store.GetStaffByName(ctx, staffName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ReleaseResult{}, notFound(fmt.Sprintf("Support staff '%s' not found.", staffName))
		}
		return ReleaseResult{}, err
	}
	if member.IsFree {
		return ReleaseResult{AlreadyFree: true, Staff: member}, nil
	}

	err = s.Store.UpdateSession(ctx, member.AssignedUser, false, func(state *models.SessionState) error {
		state.AssignedStaff = models.StaffAssignment{}
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return ReleaseResult{}, err
		}
		s.Logger.Warn().
			Str("staff", staffName).
			Str("assigned_user", member.AssignedUser).
			Msg("staff assigned to missing session, freeing roster row anyway")
	}

	if err := s.Store.ReleaseStaffRow(ctx, member.ID); err != nil {
		return ReleaseResult{}, err
	}
	member.IsFree = true
	member.AssignedUser = ""
	return ReleaseResult{Staff: member}, nil
}

func (s *Staff) List(ctx context.Context) ([]models.StaffMember, error) {
	return s.Store.ListStaff(ctx)
}

func (s *Staff) Add(ctx context.Context, name, phoneNumber string) (models.StaffMember, error) {
	member, err := s.Store.AddStaff(ctx, name, phoneNumber)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.StaffMember{}, invalidState(fmt.Sprintf("Support staff with name '%s' already exists.", name))
		}
		return models.StaffMember{}, err
	}
	return member, nil
}

// Delete removes a roster row. Busy members must be released first.
func (s *Staff) Delete(ctx context.Context, name string) error {
	err := s.Store.DeleteStaff(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(fmt.Sprintf("Support staff with name '%s' not found.", name))
	case errors.Is(err, store.ErrBusy):
		return invalidState(fmt.Sprintf("Cannot delete '%s'. They are currently assigned to a user. Please remove the assignment first.", name))
	}
	return err
}

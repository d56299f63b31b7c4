package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// Accounts manages the credentials block of the session document. A user
// with no password is a "new user" and must complete setup before the other
// tool services will act on their behalf.
type Accounts struct {
	Store store.Store
}

// SetInitialCredentials completes first-time account setup.
func (a *Accounts) SetInitialCredentials(ctx context.Context, userID, password, phone string) error {
	err := a.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		if !state.AccountInformation.IsNewUser() {
			return invalidState("An account password is already set. Use update password or update phone number instead.")
		}
		state.AccountInformation.Password = password
		state.AccountInformation.Phone = phone
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

func (a *Accounts) UpdatePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	err := a.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		if state.AccountInformation.IsNewUser() {
			return invalidState("No password is set for this account. Please set an initial password first.")
		}
		if state.AccountInformation.Password != currentPassword {
			return unauthorized("The current password you provided is incorrect.")
		}
		state.AccountInformation.Password = newPassword
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

func (a *Accounts) UpdatePhoneNumber(ctx context.Context, userID, password, newPhone string) error {
	err := a.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		if state.AccountInformation.IsNewUser() {
			return invalidState("No password is set for this account. Please set an initial password first.")
		}
		if state.AccountInformation.Password != password {
			return unauthorized("The password you provided is incorrect.")
		}
		state.AccountInformation.Phone = newPhone
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

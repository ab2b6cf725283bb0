package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	apperrors "github.com/mytad/game-auth/pkg/errors"
)

// Action names an admin operation for authorization
type Action string

const (
	ActionBan             Action = "ban"
	ActionUnban           Action = "unban"
	ActionMute            Action = "mute"
	ActionUnmute          Action = "unmute"
	ActionDisable         Action = "disable"
	ActionEnable          Action = "enable"
	ActionLock            Action = "lock"
	ActionUnlock          Action = "unlock"
	ActionResetPassword   Action = "reset_password"
	ActionGrantAdmin      Action = "grant"
	ActionRevokeAdmin     Action = "revoke"
	ActionAddExclusion    Action = "add_exclusion"
	ActionRemoveExclusion Action = "remove_exclusion"
)

// Destructive reports whether actors may not aim the action at themselves
func (a Action) Destructive() bool {
	switch a {
	case ActionBan, ActionMute, ActionDisable, ActionLock, ActionResetPassword, ActionRevokeAdmin, ActionAddExclusion:
		return true
	}
	return false
}

// Authorizer answers admin capability questions from the role table.
type Authorizer struct {
	repo Repository
}

func NewAuthorizer(repo Repository) *Authorizer {
	return &Authorizer{repo: repo}
}

// IsAdmin reports whether userID holds the admin role
func (a *Authorizer) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := a.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotAdmin) {
		return false, nil
	}
	return err == nil, err
}

// IsOwner reports whether userID is a protected admin
func (a *Authorizer) IsOwner(ctx context.Context, userID uuid.UUID) (bool, error) {
	admin, err := a.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotAdmin) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin.IsProtected, nil
}

// AssertCanActOn returns nil when actorID may perform action on targetID.
// Denials are *errors.Error values: self-targeting is invalid input,
// everything else is forbidden.
func (a *Authorizer) AssertCanActOn(ctx context.Context, actorID, targetID uuid.UUID, action Action) error {
	actor, err := a.repo.Get(ctx, actorID)
	if errors.Is(err, ErrNotAdmin) {
		return apperrors.Forbidden("Admin access required")
	}
	if err != nil {
		return apperrors.InternalWrap(err, "failed to check admin role")
	}

	if actorID == targetID && action.Destructive() {
		return apperrors.InvalidInput("user_id", "cannot perform this action on yourself")
	}

	if (action == ActionGrantAdmin || action == ActionRevokeAdmin) && !actor.IsProtected {
		return apperrors.Forbidden("Only the owner can manage admin roles")
	}

	if actorID != targetID {
		targetOwner, err := a.IsOwner(ctx, targetID)
		if err != nil {
			return apperrors.InternalWrap(err, "failed to check admin role")
		}
		if targetOwner {
			return apperrors.Forbidden("The owner account can only be managed by itself")
		}
	}
	return nil
}

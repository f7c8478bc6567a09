// Package service enforces the role-safety rules: every mutation runs under the global
// role lock, at least one administrator always remains, and nobody removes their own
// administrator membership or account.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"transitwatch/backend/internal/audit"
	auditdomain "transitwatch/backend/internal/audit/domain"
	"transitwatch/backend/internal/role/domain"
	"transitwatch/backend/internal/role/repository"
	"transitwatch/backend/internal/telemetry"
)

var (
	ErrNotFound      = errors.New("role or account not found")
	ErrSelfRevoke    = errors.New("cannot remove your own administrator role")
	ErrSelfDelete    = errors.New("cannot delete your own account")
	ErrLastAdmin     = errors.New("cannot remove the last administrator")
	ErrProtectedRole = errors.New("the administrator role cannot be renamed or deleted")
	ErrRoleNameTaken = errors.New("role name already in use")
	ErrInvalidName   = errors.New("role name must be 2-32 lowercase letters, digits, '-' or '_'")
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// RoleService implements grant, revoke, account deletion and role rename/delete.
type RoleService struct {
	store   repository.Store
	audit   audit.Recorder
	metrics *telemetry.SecurityMetrics
	now     func() time.Time
}

// NewRoleService returns a RoleService. auditRec and metrics may be nil.
func NewRoleService(store repository.Store, auditRec audit.Recorder, metrics *telemetry.SecurityMetrics) *RoleService {
	if auditRec == nil {
		auditRec = audit.Discard
	}
	return &RoleService{
		store:   store,
		audit:   auditRec,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// IsAdmin reports whether accountID currently holds the protected role.
func (s *RoleService) IsAdmin(ctx context.Context, accountID int64) (bool, error) {
	return s.store.IsAdmin(ctx, accountID)
}

// ListRoleNames returns the account's role names.
func (s *RoleService) ListRoleNames(ctx context.Context, accountID int64) ([]string, error) {
	return s.store.ListRoleNames(ctx, accountID)
}

// RoleExists reports whether ref names an active role. It reads outside the role lock;
// Grant resolves the role again under it.
func (s *RoleService) RoleExists(ctx context.Context, ref domain.RoleRef) (bool, error) {
	role, err := s.store.FindRole(ctx, ref)
	return role != nil, err
}

// Grant gives targetID the role. Granting a role already held changes nothing.
// Returns the target's role names afterwards.
func (s *RoleService) Grant(ctx context.Context, actorID, targetID int64, ref domain.RoleRef) ([]string, error) {
	var (
		roleName string
		names    []string
	)
	err := s.store.WithRoleLock(ctx, func(ctx context.Context, tx repository.Tx) error {
		role, err := resolveTarget(ctx, tx, targetID, ref)
		if err != nil {
			return err
		}
		roleName = role.Name
		if err := tx.Grant(ctx, targetID, role.ID); err != nil {
			return err
		}
		names, err = syncPrimaryRole(ctx, tx, targetID)
		return err
	})
	if err != nil {
		s.denied(ctx, "grant", actorID, targetID, ref, err)
		return nil, err
	}
	s.audit.Record(ctx, auditdomain.EventRoleGranted, audit.ActorID(actorID), map[string]any{
		"targetId": targetID,
		"role":     roleName,
	})
	s.metrics.RoleChange(ctx, "grant", "success")
	return names, nil
}

// Revoke removes the role from targetID. For the protected role an actor may not revoke
// their own membership, and the last holder keeps it.
func (s *RoleService) Revoke(ctx context.Context, actorID, targetID int64, ref domain.RoleRef) ([]string, error) {
	var (
		roleName string
		names    []string
	)
	err := s.store.WithRoleLock(ctx, func(ctx context.Context, tx repository.Tx) error {
		role, err := resolveTarget(ctx, tx, targetID, ref)
		if err != nil {
			return err
		}
		roleName = role.Name
		if role.Protected {
			if actorID == targetID {
				return ErrSelfRevoke
			}
			if err := ensureNotLastHolder(ctx, tx, targetID, role.ID); err != nil {
				return err
			}
		}
		if err := tx.Revoke(ctx, targetID, role.ID); err != nil {
			return err
		}
		names, err = syncPrimaryRole(ctx, tx, targetID)
		return err
	})
	if err != nil {
		s.denied(ctx, "revoke", actorID, targetID, ref, err)
		return nil, err
	}
	s.audit.Record(ctx, auditdomain.EventRoleRevoked, audit.ActorID(actorID), map[string]any{
		"targetId": targetID,
		"role":     roleName,
	})
	s.metrics.RoleChange(ctx, "revoke", "success")
	return names, nil
}

// DeleteAccount soft-deletes targetID under the same rules as revoking its administrator role.
func (s *RoleService) DeleteAccount(ctx context.Context, actorID, targetID int64) error {
	err := s.store.WithRoleLock(ctx, func(ctx context.Context, tx repository.Tx) error {
		if actorID == targetID {
			return ErrSelfDelete
		}
		ok, err := tx.AccountExists(ctx, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		admin, err := tx.ResolveRole(ctx, domain.RoleByName(domain.RoleAdmin))
		if err != nil {
			return err
		}
		if admin != nil {
			if err := ensureNotLastHolder(ctx, tx, targetID, admin.ID); err != nil {
				return err
			}
		}
		return mapStoreErr(tx.SoftDeleteAccount(ctx, targetID, s.now()))
	})
	if err != nil {
		s.denied(ctx, "delete_account", actorID, targetID, domain.RoleRef{}, err)
		return err
	}
	s.audit.Record(ctx, auditdomain.EventAccountDeleted, audit.ActorID(actorID), map[string]any{"targetId": targetID})
	s.metrics.RoleChange(ctx, "delete_account", "success")
	return nil
}

// RenameRole renames a non-protected role and refreshes the primary label of its holders.
func (s *RoleService) RenameRole(ctx context.Context, actorID int64, ref domain.RoleRef, newName string) error {
	newName = strings.ToLower(strings.TrimSpace(newName))
	if !roleNamePattern.MatchString(newName) {
		return ErrInvalidName
	}
	var oldName string
	err := s.store.WithRoleLock(ctx, func(ctx context.Context, tx repository.Tx) error {
		role, err := tx.ResolveRole(ctx, ref)
		if err != nil {
			return err
		}
		if role == nil {
			return ErrNotFound
		}
		if role.Protected {
			return ErrProtectedRole
		}
		oldName = role.Name
		if err := mapStoreErr(tx.RenameRole(ctx, role.ID, newName)); err != nil {
			return err
		}
		return syncHolders(ctx, tx, role.ID)
	})
	if err != nil {
		s.denied(ctx, "rename_role", actorID, 0, ref, err)
		return err
	}
	s.audit.Record(ctx, auditdomain.EventRoleRenamed, audit.ActorID(actorID), map[string]any{"from": oldName, "to": newName})
	s.metrics.RoleChange(ctx, "rename_role", "success")
	return nil
}

// DeleteRole soft-deletes a non-protected role. Holders lose it from their primary label.
func (s *RoleService) DeleteRole(ctx context.Context, actorID int64, ref domain.RoleRef) error {
	var name string
	err := s.store.WithRoleLock(ctx, func(ctx context.Context, tx repository.Tx) error {
		role, err := tx.ResolveRole(ctx, ref)
		if err != nil {
			return err
		}
		if role == nil {
			return ErrNotFound
		}
		if role.Protected {
			return ErrProtectedRole
		}
		name = role.Name
		holders, err := tx.ListHolders(ctx, role.ID)
		if err != nil {
			return err
		}
		if err := mapStoreErr(tx.SoftDeleteRole(ctx, role.ID, s.now())); err != nil {
			return err
		}
		for _, id := range holders {
			if _, err := syncPrimaryRole(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.denied(ctx, "delete_role", actorID, 0, ref, err)
		return err
	}
	s.audit.Record(ctx, auditdomain.EventRoleDeleted, audit.ActorID(actorID), map[string]any{"role": name})
	s.metrics.RoleChange(ctx, "delete_role", "success")
	return nil
}

func resolveTarget(ctx context.Context, tx repository.Tx, targetID int64, ref domain.RoleRef) (*domain.Role, error) {
	role, err := tx.ResolveRole(ctx, ref)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrNotFound
	}
	ok, err := tx.AccountExists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return role, nil
}

// ensureNotLastHolder fails with ErrLastAdmin when targetID holds roleID and nobody else does.
func ensureNotLastHolder(ctx context.Context, tx repository.Tx, targetID, roleID int64) error {
	held, err := tx.HasRole(ctx, targetID, roleID)
	if err != nil || !held {
		return err
	}
	n, err := tx.CountHolders(ctx, roleID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func syncPrimaryRole(ctx context.Context, tx repository.Tx, accountID int64) ([]string, error) {
	names, err := tx.ListRoleNames(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := tx.SetPrimaryRole(ctx, accountID, domain.PrimaryRole(names)); err != nil {
		return nil, err
	}
	return names, nil
}

func syncHolders(ctx context.Context, tx repository.Tx, roleID int64) error {
	holders, err := tx.ListHolders(ctx, roleID)
	if err != nil {
		return err
	}
	for _, id := range holders {
		if _, err := syncPrimaryRole(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrRoleNameTaken):
		return ErrRoleNameTaken
	}
	return err
}

// denied audits a refused mutation. Infrastructure errors are only counted.
func (s *RoleService) denied(ctx context.Context, op string, actorID, targetID int64, ref domain.RoleRef, err error) {
	switch {
	case errors.Is(err, ErrSelfRevoke), errors.Is(err, ErrSelfDelete), errors.Is(err, ErrLastAdmin),
		errors.Is(err, ErrProtectedRole):
		meta := map[string]any{"op": op, "reason": err.Error()}
		if targetID > 0 {
			meta["targetId"] = targetID
		}
		if r := ref.String(); r != "" {
			meta["role"] = r
		}
		s.audit.Record(ctx, auditdomain.EventRoleChangeDenied, audit.ActorID(actorID), meta)
		s.metrics.RoleChange(ctx, op, "denied")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoleNameTaken), errors.Is(err, ErrInvalidName):
		s.metrics.RoleChange(ctx, op, "rejected")
	default:
		s.metrics.RoleChange(ctx, op, "error")
	}
}

package auth

import (
	"context"
	"fmt"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/shared/apperr"
	"github.com/tallyops/settlebook/pkg/logger"
)

// Policy decides who may issue ledger commands. The owner is configured
// at deploy time and is always authorized; everyone else must be in the
// persisted admin set. The ledger engine itself never consults this,
// authorization belongs to the edges.
type Policy struct {
	store   ledger.Store
	ownerID int64
	log     *logger.Logger
}

// NewPolicy creates an authorization policy over the store's admin set.
func NewPolicy(store ledger.Store, ownerID int64, log *logger.Logger) *Policy {
	return &Policy{
		store:   store,
		ownerID: ownerID,
		log:     log.WithField("component", "auth"),
	}
}

// IsOwner reports whether userID is the configured owner.
func (p *Policy) IsOwner(userID int64) bool {
	return p.ownerID != 0 && userID == p.ownerID
}

// Authorize reports whether userID may issue ledger commands.
func (p *Policy) Authorize(ctx context.Context, userID int64) (bool, error) {
	if p.IsOwner(userID) {
		return true, nil
	}
	ok, err := p.store.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return ok, nil
}

// GrantAdmin adds a user to the admin set. Only the owner may grant.
func (p *Policy) GrantAdmin(ctx context.Context, actorID int64, admin *ledger.Admin) error {
	if !p.IsOwner(actorID) {
		return apperr.Forbidden("only the owner can manage admins")
	}
	admin.IsOwner = p.IsOwner(admin.UserID)

	if err := p.store.AddAdmin(ctx, admin); err != nil {
		return fmt.Errorf("add admin: %w", err)
	}

	p.log.Info("admin granted", "user_id", admin.UserID, "by", actorID)
	return nil
}

// RevokeAdmin removes a user from the admin set. Only the owner may
// revoke, and the owner cannot revoke themselves.
func (p *Policy) RevokeAdmin(ctx context.Context, actorID, userID int64) error {
	if !p.IsOwner(actorID) {
		return apperr.Forbidden("only the owner can manage admins")
	}
	if p.IsOwner(userID) {
		return apperr.InvalidInput("the owner cannot be removed")
	}

	if err := p.store.RemoveAdmin(ctx, userID); err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}

	p.log.Info("admin revoked", "user_id", userID, "by", actorID)
	return nil
}

// ListAdmins returns the current admin set.
func (p *Policy) ListAdmins(ctx context.Context) ([]*ledger.Admin, error) {
	return p.store.ListAdmins(ctx)
}

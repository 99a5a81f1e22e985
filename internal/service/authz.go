package service

import (
	"context"
	"errors"
	"fmt"

	"provider-sync/internal/models"
)

// Role sets accepted by Authorizer.Require
var (
	ManagerRoles = []string{models.RoleOwner, models.RoleAdmin}
	MemberRoles  = []string{models.RoleOwner, models.RoleAdmin, models.RoleStaff}
)

// Authorizer resolves a caller's role within a business
type Authorizer struct {
	members MembershipRepository
}

func NewAuthorizer(members MembershipRepository) *Authorizer {
	return &Authorizer{members: members}
}

// Role returns the caller's role. Ownership recorded on the business and
// membership rows are both consulted; the owner column wins when both exist.
// An empty role means the caller has no access.
func (a *Authorizer) Role(ctx context.Context, userID, businessID string) (string, error) {
	ownerID, err := a.members.GetBusinessOwner(ctx, businessID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("failed to load business owner: %w", err)
	}

	role, err := a.members.GetMemberRole(ctx, businessID, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("failed to load membership: %w", err)
	}

	if ownerID != "" && ownerID == userID {
		return models.RoleOwner, nil
	}
	return role, nil
}

// Require fails with *models.AuthorizationError unless the caller holds one of allowed
func (a *Authorizer) Require(ctx context.Context, userID, businessID string, allowed ...string) error {
	if userID == "" {
		return &models.AuthenticationError{Reason: "missing caller"}
	}

	role, err := a.Role(ctx, userID, businessID)
	if err != nil {
		return err
	}
	for _, r := range allowed {
		if role == r {
			return nil
		}
	}
	return &models.AuthorizationError{UserID: userID, BusinessID: businessID}
}

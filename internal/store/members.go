package store

import (
	"context"
)

// GetBusinessOwner returns the owner user id of a business
func (s *Store) GetBusinessOwner(ctx context.Context, businessID string) (string, error) {
	var ownerID string
	err := s.db.GetContext(ctx, &ownerID, "SELECT owner_id FROM businesses WHERE id = $1", businessID)
	if err != nil {
		return "", notFound(err)
	}
	return ownerID, nil
}

// GetMemberRole returns a user's role within a business
func (s *Store) GetMemberRole(ctx context.Context, businessID, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role,
		"SELECT role FROM business_members WHERE business_id = $1 AND user_id = $2",
		businessID, userID)
	if err != nil {
		return "", notFound(err)
	}
	return role, nil
}

package process

import (
	"context"
	"fmt"

	"transline/internal/domain"
	"transline/internal/identity"
)

// Factory builds the process variant of a role. Translators and reviewers are
// resolved through separate identity strategies.
type Factory struct {
	Translators identity.Resolver
	Reviewers   identity.Resolver
}

// New returns an unattached process for role on activityID.
func (f Factory) New(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*Process, error) {
	caps, err := CapabilitiesFor(role)
	if err != nil {
		return nil, err
	}
	switch role {
	case domain.RoleClient:
		return newProcess(role, caps, ""), nil
	case domain.RoleTranslator:
		userID, err := resolve(ctx, f.Translators, activityID, userIdentifier)
		if err != nil {
			return nil, fmt.Errorf("translator identity: %w", err)
		}
		return newProcess(role, caps, userID), nil
	case domain.RoleReviewer:
		userID, err := resolve(ctx, f.Reviewers, activityID, userIdentifier)
		if err != nil {
			return nil, fmt.Errorf("reviewer identity: %w", err)
		}
		return newProcess(role, caps, userID), nil
	}
	return nil, domain.UnsupportedRoleError{Role: role}
}

func resolve(ctx context.Context, r identity.Resolver, activityID, userIdentifier string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: no resolver configured", domain.ErrUnknownIdentity)
	}
	return r.Resolve(ctx, activityID, userIdentifier)
}

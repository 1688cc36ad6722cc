// Package identity resolves caller-supplied user identifiers to internal user ids.
//
// Translators and reviewers are resolved through different strategies: translators by
// their external user id, reviewers by the API key issued when the activity was deployed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"transline/internal/domain"
	"transline/internal/repo"
)

// Resolver maps a user identifier to an internal user id for an activity. An
// empty activityID authenticates the identifier without binding it to one.
type Resolver interface {
	Resolve(ctx context.Context, activityID, userIdentifier string) (string, error)
}

type UserStore interface {
	EnsureUser(ctx context.Context, externalID string) (domain.User, error)
}

type KeyStore interface {
	UserStore
	InsertAPIKey(ctx context.Context, key domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error)
}

// ExternalUsers resolves translators by external user id, provisioning the mapping on first use.
type ExternalUsers struct {
	Users UserStore
}

func (e ExternalUsers) Resolve(ctx context.Context, _ string, userIdentifier string) (string, error) {
	ext := strings.TrimSpace(userIdentifier)
	if ext == "" {
		return "", fmt.Errorf("%w: external user id required", domain.ErrUnknownIdentity)
	}
	u, err := e.Users.EnsureUser(ctx, ext)
	if err != nil {
		return "", fmt.Errorf("resolve external user: %w", err)
	}
	return u.ID, nil
}

// APIKeys resolves reviewers by API key. A key registered for an activity only
// resolves for that activity.
type APIKeys struct {
	Keys KeyStore
	Now  func() time.Time
}

func (a APIKeys) Resolve(ctx context.Context, activityID, userIdentifier string) (string, error) {
	if strings.TrimSpace(userIdentifier) == "" {
		return "", fmt.Errorf("%w: api key required", domain.ErrUnknownIdentity)
	}
	key, err := a.Keys.GetAPIKeyByHash(ctx, repo.HashAPIKey(userIdentifier))
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("%w: api key not recognized", domain.ErrUnknownIdentity)
	}
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	if activityID != "" && key.ActivityID != "" && key.ActivityID != activityID {
		return "", fmt.Errorf("%w: api key not issued for activity %s", domain.ErrUnknownIdentity, activityID)
	}
	return key.UserID, nil
}

// Register issues rawKey as the reviewer key of an activity.
func (a APIKeys) Register(ctx context.Context, activityID, rawKey string) (domain.APIKey, error) {
	if strings.TrimSpace(rawKey) == "" {
		return domain.APIKey{}, fmt.Errorf("%w: api key is blank", domain.ErrInvalidArgument)
	}
	existing, err := a.Keys.GetAPIKeyByHash(ctx, repo.HashAPIKey(rawKey))
	switch {
	case err == nil && existing.ActivityID == activityID:
		return existing, nil
	case err == nil:
		return domain.APIKey{}, fmt.Errorf("%w: api key already issued for another activity", domain.ErrInvalidArgument)
	case !errors.Is(err, repo.ErrNotFound):
		return domain.APIKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	u, err := a.Keys.EnsureUser(ctx, "reviewer/"+activityID)
	if err != nil {
		return domain.APIKey{}, err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	key := domain.APIKey{
		ID:         uuid.New().String(),
		UserID:     u.ID,
		ActivityID: activityID,
		Name:       "reviewer",
		KeyHash:    repo.HashAPIKey(rawKey),
		CreatedAt:  now().UTC().Format(time.RFC3339),
	}
	if err := a.Keys.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	return key, nil
}

// Static resolves from a fixed table. Unknown identifiers fail with ErrUnknownIdentity.
type Static map[string]string

func (s Static) Resolve(_ context.Context, _ string, userIdentifier string) (string, error) {
	if id, ok := s[userIdentifier]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownIdentity, userIdentifier)
}

// Cached memoizes successful resolutions of next. Failures are never cached.
type Cached struct {
	next  Resolver
	cache *cache.Cache
}

func NewCached(next Resolver, ttl, cleanup time.Duration) *Cached {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Cached{next: next, cache: cache.New(ttl, cleanup)}
}

func (c *Cached) Resolve(ctx context.Context, activityID, userIdentifier string) (string, error) {
	// keyed by hash; raw API keys are not retained
	cacheKey := activityID + "|" + repo.HashAPIKey(userIdentifier)
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.(string), nil
	}
	id, err := c.next.Resolve(ctx, activityID, userIdentifier)
	if err != nil {
		return "", err
	}
	c.cache.Set(cacheKey, id, cache.DefaultExpiration)
	return id, nil
}

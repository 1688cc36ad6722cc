package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"transline/internal/domain"
)

// UserIDFor derives the internal id assigned to an external user identifier.
func UserIDFor(externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("user|"+strings.TrimSpace(externalID))).String()
}

// EnsureUser returns the user mapped to externalID, creating the mapping on first sight.
func (r Repo) EnsureUser(ctx context.Context, externalID string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO users(id, external_id, created_at) VALUES (?,?,?)`,
		UserIDFor(externalID), externalID, now); err != nil {
		return domain.User{}, err
	}
	return r.GetUserByExternalID(ctx, externalID)
}

func (r Repo) GetUserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id, external_id, created_at FROM users WHERE external_id=?`, externalID).
		Scan(&u.ID, &u.ExternalID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

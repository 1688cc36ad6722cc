package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	v, err := Current(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	latest, err := Latest()
	require.NoError(t, err)
	require.GreaterOrEqual(t, latest, 1)

	require.NoError(t, Migrate(ctx, conn))
	require.NoError(t, Migrate(ctx, conn))
	v, err = Current(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)
}

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transline/internal/domain"
	"transline/internal/engine"
	"transline/internal/proxy"
)

func TestOpenRehydratesWorkspace(t *testing.T) {
	ws := t.TempDir()
	ctx := proxy.WithActor(context.Background(), "cli")

	a, err := Open(ctx, Options{Workspace: ws})
	require.NoError(t, err)
	_, err = a.Service.CreateDocument(ctx, engine.DeployRequest{ActivityID: "act-1", Text: "Hi", LanguageFrom: "en", LanguageTo: "pt"})
	require.NoError(t, err)
	_, err = a.Service.GetOrCreateProcess(ctx, "act-1", domain.RoleTranslator, "ana")
	require.NoError(t, err)
	_, err = a.Service.ChangeText(ctx, "act-1", domain.RoleTranslator, "Oi tudo")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, Options{Workspace: ws})
	require.NoError(t, err)
	defer b.Close()

	st := b.Service.Status(ctx, "act-1", domain.RoleTranslator)
	require.NotNil(t, st)
	assert.Equal(t, "Oitudo", st.TranslatedText)

	ok, err := b.Service.RestoreLastVersion(ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.True(t, ok)

	evts, err := b.Repo.LatestEvents(ctx, 10, "act-1", "")
	require.NoError(t, err)
	require.Len(t, evts, 4)
	assert.Equal(t, "text.restored", evts[0].Type)
	assert.Equal(t, "cli", evts[0].ActorID)
}

package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transline/internal/db"
	"transline/internal/domain"
	"transline/internal/engine"
	"transline/internal/identity"
	"transline/internal/migrate"
	"transline/internal/process"
	"transline/internal/repo"
	"transline/internal/store"
)

type testEnv struct {
	Engine *engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func factoryFor(r repo.Repo) process.Factory {
	return process.Factory{
		Translators: identity.ExternalUsers{Users: r},
		Reviewers:   identity.APIKeys{Keys: r},
	}
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn), "migrate")

	r := repo.Repo{DB: conn}
	eng := engine.New(store.NewMemory(factoryFor(r)), r)
	eng.Keys = identity.APIKeys{Keys: r}
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = eng.CreateDocument(ctx, engine.DeployRequest{
		ActivityID:       "act-1",
		Text:             "Good morning",
		Instructions:     "informal",
		LanguageFrom:     "en",
		LanguageTo:       "pt",
		TimeLimitMinutes: 30,
		TranslatorCount:  1,
		ReviewerAPIKey:   "rev-secret",
	})
	require.NoError(t, err, "deploy")
	return testEnv{Engine: eng, Repo: r, Ctx: ctx}
}

func TestDeployPersistsDocument(t *testing.T) {
	env := newTestEnv(t)
	doc, err := env.Repo.GetDocument(env.Ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.ID)
	assert.Equal(t, "Good morning", doc.Text)
	assert.Equal(t, 30, doc.TimeLimitMinutes)
	assert.Equal(t, domain.StatusOpen, doc.Status)
	assert.Equal(t, "2024-01-01T00:00:00Z", doc.CreatedAt)

	_, err = env.Engine.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-2", TranslatorCount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReviewerResolvedByDeployKey(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleReviewer, "rev-secret")
	require.NoError(t, err)
	assert.Equal(t, repo.UserIDFor("reviewer/act-1"), p.UserID())

	_, err = env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleTranslator, "")
	assert.ErrorIs(t, err, domain.ErrUnknownIdentity)

	keys, err := env.Repo.ListAPIKeys(env.Ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotEqual(t, "rev-secret", keys[0].KeyHash)
}

func TestEngineAppliesWithoutValidation(t *testing.T) {
	env := newTestEnv(t)

	ok, err := env.Engine.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "x")
	require.NoError(t, err)
	assert.False(t, ok, "missing process")
	assert.Nil(t, env.Engine.Status(env.Ctx, "act-1", domain.RoleTranslator))
	assert.Nil(t, env.Engine.GetProcess(env.Ctx, "act-1"))

	_, err = env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleClient, "")
	require.NoError(t, err)
	ok, err = env.Engine.ChangeText(env.Ctx, "act-1", domain.RoleClient, "Olá, raw!")
	require.NoError(t, err)
	assert.True(t, ok)

	st := env.Engine.Status(env.Ctx, "act-1", domain.RoleClient)
	require.NotNil(t, st)
	assert.Equal(t, "Olá, raw!", st.Text)
	assert.NotNil(t, env.Engine.GetProcess(env.Ctx, "act-1"))
}

func TestStateSurvivesReload(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleTranslator, "ext-42")
	require.NoError(t, err)

	for _, text := range []string{"Bom", "Bom dia"} {
		p.Lock()
		env.Engine.Versions.Save(p)
		_, err := env.Engine.ApplyText(env.Ctx, p, text)
		p.Unlock()
		require.NoError(t, err)
	}
	ok, err := env.Engine.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded := store.NewMemory(factoryFor(env.Repo))
	require.NoError(t, reloaded.Load(env.Ctx, env.Repo))
	rp, ok := reloaded.Find("act-1", domain.RoleTranslator)
	require.True(t, ok)
	snap := rp.Snapshot()
	assert.Equal(t, "Bom", snap.TranslatedText)
	assert.Equal(t, repo.UserIDFor("ext-42"), snap.UserID)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "", snap.History[0].Text)

	versions, err := env.Engine.History(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.Equal(t, snap.History, versions)
}

func TestCompleteFreezesHistory(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleTranslator, "ext-42")
	require.NoError(t, err)
	p.Lock()
	env.Engine.Versions.Save(p)
	_, err = env.Engine.ApplyText(env.Ctx, p, "Bom dia")
	p.Unlock()
	require.NoError(t, err)

	ok, err := env.Engine.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.Engine.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, len(p.Snapshot().History))

	doc, err := env.Repo.GetDocument(env.Ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, doc.Status)

	_, err = env.Engine.History(env.Ctx, "act-1", domain.RoleReviewer)
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)
}

func TestFailedDeployLeavesNoDocument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-2", Text: "Hi", ReviewerAPIKey: "rev-secret"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = env.Engine.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-2", Text: "Hi", ReviewerAPIKey: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, ok := env.Engine.Store.FindDocument("act-2")
	assert.False(t, ok)
	_, err = env.Repo.GetDocument(env.Ctx, "act-2")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	doc, err := env.Engine.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-2", Text: "Hi", ReviewerAPIKey: "rev-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.ID)

	_, err = env.Engine.GetOrCreateProcess(env.Ctx, "act-2", domain.RoleReviewer, "rev-secret")
	assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
	p, err := env.Engine.GetOrCreateProcess(env.Ctx, "act-2", domain.RoleReviewer, "rev-2")
	require.NoError(t, err)
	assert.Equal(t, repo.UserIDFor("reviewer/act-2"), p.UserID())
}

type flakyPersister struct {
	repo.Repo
	fail bool
}

func (f *flakyPersister) SaveState(ctx context.Context, d domain.Document, p domain.ActorProcess) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Repo.SaveState(ctx, d, p)
}

func TestFailedWriteThroughRollsBack(t *testing.T) {
	env := newTestEnv(t)
	persist := &flakyPersister{Repo: env.Repo}
	env.Engine.Persist = persist

	p, err := env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleTranslator, "ext-42")
	require.NoError(t, err)
	p.Lock()
	env.Engine.Versions.Save(p)
	_, err = env.Engine.ApplyText(env.Ctx, p, "Bom")
	p.Unlock()
	require.NoError(t, err)

	persist.fail = true
	p.Lock()
	ok, err := env.Engine.ApplyText(env.Ctx, p, "Ola")
	p.Unlock()
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Bom", p.Snapshot().TranslatedText)

	ok, err = env.Engine.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.Error(t, err)
	assert.False(t, ok)
	snap := p.Snapshot()
	assert.Equal(t, "Bom", snap.TranslatedText)
	assert.Len(t, snap.History, 1)

	ok, err = env.Engine.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, p.Document().Completed())
	assert.True(t, p.Snapshot().Editable)

	_, err = env.Engine.GetOrCreateProcess(env.Ctx, "act-1", domain.RoleClient, "")
	require.Error(t, err)
	_, ok = env.Engine.Store.Find("act-1", domain.RoleClient)
	assert.False(t, ok)

	persist.fail = false
	_, created, err := env.Engine.OpenProcess(env.Ctx, "act-1", domain.RoleClient, "")
	require.NoError(t, err)
	assert.True(t, created)

	procs, err := env.Repo.LoadProcesses(env.Ctx)
	require.NoError(t, err)
	for _, rec := range procs {
		if rec.Role == domain.RoleTranslator {
			assert.Equal(t, "Bom", rec.TranslatedText)
		}
	}
}

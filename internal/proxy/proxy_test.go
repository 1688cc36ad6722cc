package proxy_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"transline/internal/domain"
	"transline/internal/engine"
	"transline/internal/events"
	"transline/internal/identity"
	"transline/internal/metrics"
	"transline/internal/process"
	"transline/internal/proxy"
	"transline/internal/store"
)

type memJournal struct {
	mu   sync.Mutex
	recs []events.Record
}

func (j *memJournal) Write(_ context.Context, rec events.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, r := range j.recs {
		out = append(out, r.Type)
	}
	return out
}

type testEnv struct {
	Proxy   *proxy.Proxy
	Engine  *engine.Engine
	Journal *memJournal
	Metrics *metrics.Metrics
	Ctx     context.Context
}

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	st := store.NewMemory(process.Factory{
		Translators: identity.Static{"ana": "u-ana"},
		Reviewers:   identity.Static{"key-1": "u-rev"},
	})
	eng := engine.New(st, nil)
	eng.Now = func() time.Time { return fixedNow }
	j := &memJournal{}
	m := metrics.New(prometheus.NewRegistry())
	px := proxy.New(eng,
		proxy.WithJournal(j),
		proxy.WithMetrics(m),
		proxy.WithNow(func() time.Time { return fixedNow }),
	)
	ctx := context.Background()
	_, err := px.CreateDocument(ctx, engine.DeployRequest{
		ActivityID:   "act-1",
		Text:         "Hello world",
		Instructions: "keep it short",
		LanguageFrom: "en",
		LanguageTo:   "pt",
	})
	require.NoError(t, err)
	return testEnv{Proxy: px, Engine: eng, Journal: j, Metrics: m, Ctx: ctx}
}

func (env testEnv) open(t *testing.T, role domain.Role, user string) *process.Process {
	t.Helper()
	p, err := env.Proxy.GetOrCreateProcess(env.Ctx, "act-1", role, user)
	require.NoError(t, err)
	return p
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrValidation), "expected validation error, got %v", err)
	var verr domain.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr.Reason
}

func TestChangeTextSanitizesAccentedInput(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, domain.RoleTranslator, "ana")

	ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "Olá mundo")
	require.NoError(t, err)
	assert.True(t, ok)

	st := env.Proxy.Status(env.Ctx, "act-1", domain.RoleTranslator)
	require.NotNil(t, st)
	assert.Equal(t, "Olmundo", st.TranslatedText)
	assert.Equal(t, "Hello world", st.Text)
	assert.Equal(t, "open", st.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.Metrics.StrippedChars))
}

func TestBlankInputAlwaysRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.open(t, domain.RoleTranslator, "ana")

	for _, in := range []string{"", " ", "\t\n  "} {
		ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, in)
		assert.False(t, ok)
		assert.Equal(t, domain.ReasonEmptyInput, reasonOf(t, err))
	}
	snap := p.Snapshot()
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.TranslatedText)
	assert.Empty(t, snap.LastModifiedBy)
}

func TestNonEditableRolesRejected(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, domain.RoleClient, "")
	env.open(t, domain.RoleReviewer, "key-1")

	for _, role := range []domain.Role{domain.RoleClient, domain.RoleReviewer} {
		ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", role, "valid text")
		assert.False(t, ok)
		assert.Equal(t, domain.ReasonNotEditable, reasonOf(t, err))
	}
	doc, ok := env.Engine.Store.FindDocument("act-1")
	require.True(t, ok)
	assert.Equal(t, "Hello world", doc.Text())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.Metrics.Mutations.WithLabelValues("change_text", "client", "rejected"))+
		testutil.ToFloat64(env.Metrics.Mutations.WithLabelValues("change_text", "reviewer", "rejected")))
}

func TestChangeTextUnknownProcess(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "text")
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)

	_, err = env.Proxy.RestoreLastVersion(env.Ctx, "nope", domain.RoleTranslator)
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)

	_, err = env.Proxy.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)
}

func TestCompletionLocksProcess(t *testing.T) {
	env := newTestEnv(t)
	p := env.open(t, domain.RoleTranslator, "ana")

	_, err := env.Proxy.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	assert.Equal(t, domain.ReasonEmptyInput, reasonOf(t, err))

	_, err = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "Ola")
	require.NoError(t, err)
	ok, err := env.Proxy.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Document().Completed())

	ok, err = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "again")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrValidation)

	ok, err = env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Ola", p.Snapshot().TranslatedText)

	client := env.open(t, domain.RoleClient, "")
	assert.Equal(t, "completed", client.Status().Status)
}

func TestRestoresUndoEditsInReverseOrder(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, domain.RoleTranslator, "ana")

	edits := []string{"one", "two", "three", "four"}
	for _, e := range edits {
		ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, e)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, want := range []string{"three", "two", "one", ""} {
		ok, err := env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, env.Proxy.Status(env.Ctx, "act-1", domain.RoleTranslator).TranslatedText)
	}
	ok, err := env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditStampUsesContextActor(t *testing.T) {
	env := newTestEnv(t)
	p := env.open(t, domain.RoleTranslator, "ana")

	_, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "first")
	require.NoError(t, err)
	snap := p.Snapshot()
	assert.Equal(t, "user", snap.LastModifiedBy)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), snap.LastModifiedAt)

	ctx := proxy.WithActor(env.Ctx, "ana@example.com")
	_, err = env.Proxy.ChangeText(ctx, "act-1", domain.RoleTranslator, "second")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Snapshot().LastModifiedBy)
}

func TestJournalRecordsOperations(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, domain.RoleTranslator, "ana")
	env.open(t, domain.RoleTranslator, "ana")
	_, _ = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, " ")
	_, _ = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "text")
	_, _ = env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	_, _ = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "final")
	_, _ = env.Proxy.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)

	assert.Equal(t, []string{
		"document.created",
		"process.created",
		"text.rejected",
		"text.changed",
		"text.restored",
		"text.changed",
		"process.completed",
	}, env.Journal.types())
}

func TestDuplicateDeployRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Proxy.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-1", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.Proxy.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "  ", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	doc, err := env.Proxy.CreateDocument(env.Ctx, engine.DeployRequest{ActivityID: "act-2", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.ID)
}

func TestConcurrentEditsOnOneProcessSerialize(t *testing.T) {
	env := newTestEnv(t)
	p := env.open(t, domain.RoleTranslator, "ana")

	const n = 50
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, fmt.Sprintf("v%d", i))
			if err == nil && !ok {
				err = errors.New("edit not applied")
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, p.Snapshot().History, n)

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		seen[p.Snapshot().TranslatedText] = true
		ok, err := env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Len(t, seen, n)
	assert.Equal(t, "", p.Snapshot().TranslatedText)

	ok, err := env.Proxy.RestoreLastVersion(env.Ctx, "act-1", domain.RoleTranslator)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingPersister struct{}

func (failingPersister) SaveDocument(context.Context, domain.Document) error { return nil }

func (failingPersister) SaveProcess(context.Context, domain.ActorProcess) error {
	return errors.New("disk full")
}

func (failingPersister) SaveState(context.Context, domain.Document, domain.ActorProcess) error {
	return errors.New("disk full")
}

func (failingPersister) LoadDocuments(context.Context) ([]domain.Document, error) { return nil, nil }

func (failingPersister) LoadProcesses(context.Context) ([]domain.ActorProcess, error) {
	return nil, nil
}

func TestFailedWriteUndoesPipeline(t *testing.T) {
	env := newTestEnv(t)
	p := env.open(t, domain.RoleTranslator, "ana")
	ok, err := env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "Bom")
	require.NoError(t, err)
	require.True(t, ok)
	before := p.Snapshot()

	env.Engine.Persist = failingPersister{}
	ok, err = env.Proxy.ChangeText(env.Ctx, "act-1", domain.RoleTranslator, "Ola")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrValidation))
	assert.False(t, ok)
	assert.Equal(t, before, p.Snapshot())

	ok, err = env.Proxy.CompleteProcess(env.Ctx, "act-1", domain.RoleTranslator)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, p.Document().Completed())
	assert.Equal(t, before, p.Snapshot())

	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.Mutations.WithLabelValues("change_text", "translator", "error")))
	assert.NotContains(t, env.Journal.types(), "process.completed")
}

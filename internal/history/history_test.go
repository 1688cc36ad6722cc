package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transline/internal/domain"
	"transline/internal/identity"
	"transline/internal/process"
)

func newTranslator(t *testing.T) *process.Process {
	t.Helper()
	f := process.Factory{Translators: identity.Static{"ana": "u-ana"}}
	p, err := f.New(context.Background(), "act-1", domain.RoleTranslator, "ana")
	require.NoError(t, err)
	p.Attach(process.NewDocument(domain.Document{ID: 1, ActivityID: "act-1", Text: "hello"}))
	return p
}

func TestSaveCapturesCurrentText(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := Manager{Now: func() time.Time { return fixed }}
	p := newTranslator(t)
	p.SetTranslatedText("draft")

	v := m.Save(p)
	assert.Equal(t, "draft", v.Text)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), v.CapturedAt)
	assert.Equal(t, 1, p.HistoryLen())
}

func TestRestoreLastIsLIFO(t *testing.T) {
	m := Manager{}
	p := newTranslator(t)

	edits := []string{"a", "b", "c"}
	for _, e := range edits {
		m.Save(p)
		p.ChangeText(e)
	}
	require.Equal(t, "c", p.TranslatedText())

	for _, want := range []string{"b", "a", ""} {
		require.True(t, m.RestoreLast(p))
		assert.Equal(t, want, p.TranslatedText())
	}
	assert.False(t, m.RestoreLast(p))
	assert.Equal(t, "", p.TranslatedText())
}

func TestRestoreDoesNotTouchHistory(t *testing.T) {
	m := Manager{}
	p := newTranslator(t)
	m.Save(p)
	m.Restore(p, domain.TextVersion{Text: "older"})
	assert.Equal(t, "older", p.TranslatedText())
	assert.Equal(t, 1, p.HistoryLen())
}

package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/core"
)

func ptr(s string) *string { return &s }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "user-settings.json"), nil)
}

func TestGetDefaults(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get("ann")
	require.NoError(t, err)
	assert.Equal(t, Settings{ChartType: ChartPie, Language: DefaultLanguage}, got)
}

func TestUpdateMergesAndNormalises(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Update("ann", Patch{DefaultWho: ptr(" Ann "), ChartType: ptr("BAR")})
	require.NoError(t, err)
	assert.Equal(t, Settings{DefaultWho: "Ann", ChartType: ChartBar, Language: DefaultLanguage}, got)

	got, err = s.Update("ann", Patch{Language: ptr("ru"), ChartType: ptr("donut")})
	require.NoError(t, err)
	assert.Equal(t, Settings{DefaultWho: "Ann", ChartType: ChartPie, Language: "ru"}, got)

	other, err := s.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "", other.DefaultWho)

	anon, err := s.Update("  ", Patch{DefaultWho: ptr("x")})
	require.NoError(t, err)
	fromDefault, err := s.Get(DefaultUser)
	require.NoError(t, err)
	assert.Equal(t, anon, fromDefault)
}

func TestUnknownFieldsSurviveUpdate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"ann":{"theme":"dark","language":"de"}}`), 0o644))

	_, err := s.Update("ann", Patch{DefaultWho: ptr("Ann")})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"theme": "dark"`)

	got, err := s.Get("ann")
	require.NoError(t, err)
	assert.Equal(t, "de", got.Language)
}

func TestCorruptFileReadsAsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o644))

	got, err := s.Get("ann")
	require.NoError(t, err)
	assert.Equal(t, ChartPie, got.ChartType)
}

func TestExportImport(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update("ann", Patch{Language: ptr("ru")})
	require.NoError(t, err)

	snap, err := s.Export()
	require.NoError(t, err)

	_, err = s.Update("ann", Patch{Language: ptr("en")})
	require.NoError(t, err)
	require.NoError(t, s.Import(snap))

	got, err := s.Get("ann")
	require.NoError(t, err)
	assert.Equal(t, "ru", got.Language)

	err = s.Import(json.RawMessage(`[1,2]`))
	assert.True(t, core.IsIntegrity(err))
}

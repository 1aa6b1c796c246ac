package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a tiny in-memory ConfigStore; config's only dependency is the
// narrow ConfigStore interface, so a hand-rolled map fits here (no schema or
// transactional semantics are exercised by this package).
type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{values: map[string]string{}} }

func (f *fakeStore) GetConfigValue(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) SetConfigValue(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func TestGet_FallsBackToDefaultWhenUnset(t *testing.T) {
	t.Parallel()
	p := NewProvider(newFakeStore())
	assert.Equal(t, "86400", p.Get(t.Context(), KeyMaxSessionDurationS))
}

func TestGet_DBOverrideWinsOverDefault(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	p := NewProvider(s)

	require.NoError(t, p.Set(t.Context(), KeyMaxSessionDurationS, "3600"))
	assert.Equal(t, "3600", p.Get(t.Context(), KeyMaxSessionDurationS))
}

func TestGetInt_FallsBackOnParseError(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	p := NewProvider(s)

	require.NoError(t, p.Set(t.Context(), KeyMaxSessionDurationS, "not-a-number"))
	assert.Equal(t, 42, p.GetInt(t.Context(), KeyMaxSessionDurationS, 42))
}

func TestGetInt_ParsesDefault(t *testing.T) {
	t.Parallel()
	p := NewProvider(newFakeStore())
	assert.Equal(t, 2, p.GetInt(t.Context(), KeyRemoteAuthPollingInterval, -1))
}

func TestGetBool_ParsesOverrideAndDefault(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	p := NewProvider(s)

	assert.True(t, p.GetBool(t.Context(), KeySetupTokenSendEmailDefault))

	require.NoError(t, p.Set(t.Context(), KeySetupTokenSendEmailDefault, "false"))
	assert.False(t, p.GetBool(t.Context(), KeySetupTokenSendEmailDefault))
}

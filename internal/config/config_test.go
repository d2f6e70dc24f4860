package config

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockKeyring is an in-memory keyring for tests.
type mockKeyring struct {
	items map[string]keyring.Item
}

func newMockKeyring() *mockKeyring {
	return &mockKeyring{items: make(map[string]keyring.Item)}
}

func (m *mockKeyring) Get(key string) (keyring.Item, error) {
	item, ok := m.items[key]
	if !ok {
		return keyring.Item{}, keyring.ErrKeyNotFound
	}
	return item, nil
}

func (m *mockKeyring) GetMetadata(key string) (keyring.Metadata, error) {
	return keyring.Metadata{}, nil
}

func (m *mockKeyring) Set(item keyring.Item) error {
	m.items[item.Key] = item
	return nil
}

func (m *mockKeyring) Remove(key string) error {
	if _, ok := m.items[key]; !ok {
		return keyring.ErrKeyNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *mockKeyring) Keys() ([]string, error) {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func useMockKeyring(t *testing.T) *mockKeyring {
	t.Helper()
	mock := newMockKeyring()
	restore := SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return mock, nil
	})
	t.Cleanup(restore)
	// Keep registry lookups away from real env overrides.
	t.Setenv(envBaseURL, "")
	t.Setenv(envAPIKey, "")
	t.Setenv(envServerName, "")
	return mock
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://app.all-hands.dev", "https://app.all-hands.dev/api"},
		{"https://app.all-hands.dev/", "https://app.all-hands.dev/api"},
		{"https://app.all-hands.dev/api", "https://app.all-hands.dev/api"},
		{"https://app.all-hands.dev/api/", "https://app.all-hands.dev/api"},
		{"  https://x.dev  ", "https://x.dev/api"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBaseURL(tt.in), "input %q", tt.in)
	}
}

func TestSaveAndLoadServer(t *testing.T) {
	useMockKeyring(t)

	err := SaveServer(Server{Name: "prod", BaseURL: "https://app.all-hands.dev", APIKey: "sk-test"})
	require.NoError(t, err)

	server, err := LoadNamedServer("prod")
	require.NoError(t, err)
	assert.Equal(t, "prod", server.Name)
	assert.Equal(t, "https://app.all-hands.dev/api", server.BaseURL)
	assert.Equal(t, "sk-test", server.APIKey)
}

func TestFirstServerBecomesDefault(t *testing.T) {
	useMockKeyring(t)

	require.NoError(t, SaveServer(Server{Name: "one", BaseURL: "https://one.dev", APIKey: "k1"}))
	require.NoError(t, SaveServer(Server{Name: "two", BaseURL: "https://two.dev", APIKey: "k2"}))

	name, err := DefaultServerName()
	require.NoError(t, err)
	assert.Equal(t, "one", name)

	server, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, "one", server.Name)
}

func TestSetDefaultServer(t *testing.T) {
	useMockKeyring(t)

	require.NoError(t, SaveServer(Server{Name: "one", BaseURL: "https://one.dev", APIKey: "k1"}))
	require.NoError(t, SaveServer(Server{Name: "two", BaseURL: "https://two.dev", APIKey: "k2"}))

	require.NoError(t, SetDefaultServer("two"))
	server, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, "two", server.Name)

	err = SetDefaultServer("missing")
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestDeleteServerReassignsDefault(t *testing.T) {
	useMockKeyring(t)

	require.NoError(t, SaveServer(Server{Name: "one", BaseURL: "https://one.dev", APIKey: "k1"}))
	require.NoError(t, SaveServer(Server{Name: "two", BaseURL: "https://two.dev", APIKey: "k2"}))

	require.NoError(t, DeleteServer("one"))

	name, err := DefaultServerName()
	require.NoError(t, err)
	assert.Equal(t, "two", name)

	_, err = LoadNamedServer("one")
	assert.ErrorIs(t, err, ErrServerNotFound)

	names, err := ListServers()
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, names)
}

func TestDeleteLastServer(t *testing.T) {
	useMockKeyring(t)

	require.NoError(t, SaveServer(Server{Name: "only", BaseURL: "https://only.dev", APIKey: "k"}))
	require.NoError(t, DeleteServer("only"))

	_, err := LoadServer("")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, HasServer())
}

func TestLoadServerEnvOverride(t *testing.T) {
	useMockKeyring(t)
	t.Setenv(envBaseURL, "https://env.dev")
	t.Setenv(envAPIKey, "env-key")

	server, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, "env", server.Name)
	assert.Equal(t, "https://env.dev/api", server.BaseURL)
	assert.Equal(t, "env-key", server.APIKey)
}

func TestLoadServerEnvIncomplete(t *testing.T) {
	useMockKeyring(t)
	t.Setenv(envBaseURL, "https://env.dev")

	_, err := LoadServer("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OHC_API_KEY")
}

func TestLoadServerByEnvName(t *testing.T) {
	useMockKeyring(t)
	require.NoError(t, SaveServer(Server{Name: "one", BaseURL: "https://one.dev", APIKey: "k1"}))
	require.NoError(t, SaveServer(Server{Name: "two", BaseURL: "https://two.dev", APIKey: "k2"}))
	t.Setenv(envServerName, "two")

	server, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, "two", server.Name)

	// Explicit name wins over OHC_SERVER.
	server, err = LoadServer("one")
	require.NoError(t, err)
	assert.Equal(t, "one", server.Name)
}

func TestLoadServerUnconfigured(t *testing.T) {
	useMockKeyring(t)

	_, err := LoadServer("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSaveServerEmptyName(t *testing.T) {
	useMockKeyring(t)
	assert.Error(t, SaveServer(Server{Name: "  ", BaseURL: "https://x.dev", APIKey: "k"}))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "********", MaskKey("12345678"))

	masked := MaskKey("sk-abcdefgh-1234")
	assert.Len(t, masked, len("sk-abcdefgh-1234"))
	assert.Equal(t, "sk-a", masked[:4])
	assert.Equal(t, "1234", masked[len(masked)-4:])
	assert.NotContains(t, masked, "abcdefgh")
}

// Package config stores the server registry in the OS keychain.
//
// Each record is a named server (base URL + API key); one of them is
// marked default. Headless Linux hosts fall back to encrypted file
// storage. Environment variables can bypass the registry entirely, see
// LoadServer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName      = "ohc"
	serverPrefix     = "server:"
	serverIndexKey   = "servers_index"
	defaultServerKey = "default_server"

	envKeyringBackend  = "OHC_KEYRING_BACKEND"
	envKeyringPassword = "OHC_KEYRING_PASSWORD"
	envCredentialsDir  = "OHC_CREDENTIALS_DIR"

	envBaseURL    = "OHC_BASE_URL"
	envAPIKey     = "OHC_API_KEY"
	envServerName = "OHC_SERVER"

	keyringBackendAuto   = "auto"
	keyringBackendFile   = "file"
	keyringBackendSystem = "system"
)

// openKeyring is a package-level function for opening keyrings.
// It can be replaced in tests to use a mock keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

var userConfigDir = os.UserConfigDir

var stdinHasTTY = func() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SetOpenKeyring allows replacing the keyring opener for testing.
// Returns a cleanup function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

// Server holds one server's connection details.
type Server struct {
	Name    string `json:"name"`
	BaseURL string `json:"url"`
	APIKey  string `json:"api_key"`
}

// ErrNotConfigured is returned when no server is configured.
var ErrNotConfigured = errors.New("no server configured - run 'ohc server add' first")

// ErrServerNotFound is returned when a named server does not exist.
var ErrServerNotFound = errors.New("server not found")

// NormalizeBaseURL cleans up a user-supplied server URL so it ends in
// "/api" (the service roots every endpoint there). Accepts bare hosts,
// trailing slashes, and URLs already ending in /api.
func NormalizeBaseURL(raw string) string {
	url := strings.TrimSpace(raw)
	url = strings.TrimRight(url, "/")
	if url == "" {
		return url
	}
	if !strings.HasSuffix(url, "/api") {
		url += "/api"
	}
	return url
}

// keyringConfig returns the keyring configuration
func keyringConfig() keyring.Config {
	cfg := keyring.Config{
		ServiceName: serviceName,
	}

	backend := keyringBackendMode()
	if backend == keyringBackendSystem {
		return cfg
	}

	// Always configure file backend details in auto mode so keyring.Open
	// can fall through to encrypted file storage when native backends are
	// missing.
	configureFileBackend(&cfg)

	// Headless Linux should bypass other backends and use encrypted file storage.
	if shouldForceFileBackend(runtime.GOOS, backend, os.Getenv("DBUS_SESSION_BUS_ADDRESS")) {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	return cfg
}

func keyringBackendMode() string {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv(envKeyringBackend)))
	switch backend {
	case "", keyringBackendAuto:
		return keyringBackendAuto
	case keyringBackendFile:
		return keyringBackendFile
	case keyringBackendSystem, "os", "native":
		return keyringBackendSystem
	default:
		return keyringBackendAuto
	}
}

func shouldForceFileBackend(goos, backend, dbusAddr string) bool {
	if backend == keyringBackendFile {
		return true
	}
	if backend != keyringBackendAuto {
		return false
	}
	return goos == "linux" && strings.TrimSpace(dbusAddr) == ""
}

func configureFileBackend(cfg *keyring.Config) {
	cfg.FileDir = keyringFileDir()
	cfg.FilePasswordFunc = keyringFilePassword
}

func keyringFileDir() string {
	base := strings.TrimSpace(os.Getenv(envCredentialsDir))
	if base == "" {
		if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
			base = filepath.Join(dir, serviceName)
		}
	}
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			base = filepath.Join(home, ".config", serviceName)
		}
	}
	if base == "" {
		base = filepath.Join(os.TempDir(), serviceName)
	}
	return filepath.Join(base, "keyring")
}

func keyringFilePassword(prompt string) (string, error) {
	if password, ok := os.LookupEnv(envKeyringPassword); ok && strings.TrimSpace(password) != "" {
		return password, nil
	}
	if !stdinHasTTY() {
		return "", fmt.Errorf("set %s when using file keyring in non-interactive environments", envKeyringPassword)
	}
	return keyring.TerminalPrompt(prompt)
}

func serverKey(name string) string {
	return serverPrefix + name
}

func loadServerIndex(ring keyring.Keyring) ([]string, error) {
	item, err := ring.Get(serverIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get server index: %w", err)
	}
	var names []string
	if err := json.Unmarshal(item.Data, &names); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server index: %w", err)
	}
	return names, nil
}

func saveServerIndex(ring keyring.Keyring, names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to marshal server index: %w", err)
	}
	return ring.Set(keyring.Item{
		Key:  serverIndexKey,
		Data: data,
	})
}

func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SaveServer stores a server record. The first server saved becomes the
// default automatically.
func SaveServer(server Server) error {
	if strings.TrimSpace(server.Name) == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	server.BaseURL = NormalizeBaseURL(server.BaseURL)

	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	data, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("failed to marshal server: %w", err)
	}

	if err := ring.Set(keyring.Item{
		Key:  serverKey(server.Name),
		Data: data,
	}); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}

	names, err := loadServerIndex(ring)
	if err != nil {
		return err
	}
	wasEmpty := len(names) == 0
	names = normalizeNames(append(names, server.Name))
	if err := saveServerIndex(ring, names); err != nil {
		return err
	}

	if wasEmpty {
		return setDefaultOn(ring, server.Name)
	}
	return nil
}

// LoadNamedServer retrieves one server record by name.
func LoadNamedServer(name string) (Server, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return Server{}, fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := ring.Get(serverKey(name))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Server{}, fmt.Errorf("%w: %s", ErrServerNotFound, name)
		}
		return Server{}, fmt.Errorf("failed to get server: %w", err)
	}

	var server Server
	if err := json.Unmarshal(item.Data, &server); err != nil {
		return Server{}, fmt.Errorf("failed to unmarshal server: %w", err)
	}
	return server, nil
}

// LoadServer resolves the server to use, in order of precedence:
//
//  1. OHC_BASE_URL + OHC_API_KEY environment variables
//  2. the named server (explicit name argument, or OHC_SERVER when empty)
//  3. the default server
//
// Returns ErrNotConfigured when nothing is configured.
func LoadServer(name string) (Server, error) {
	if baseURL := strings.TrimSpace(os.Getenv(envBaseURL)); baseURL != "" {
		apiKey := strings.TrimSpace(os.Getenv(envAPIKey))
		if apiKey == "" {
			return Server{}, fmt.Errorf("environment variables %s and %s must both be set", envBaseURL, envAPIKey)
		}
		return Server{
			Name:    "env",
			BaseURL: NormalizeBaseURL(baseURL),
			APIKey:  apiKey,
		}, nil
	}

	if name == "" {
		name = strings.TrimSpace(os.Getenv(envServerName))
	}
	if name != "" {
		return LoadNamedServer(name)
	}

	defaultName, err := DefaultServerName()
	if err != nil {
		return Server{}, err
	}
	if defaultName == "" {
		// Fall back to the sole configured server, if any.
		names, err := ListServers()
		if err != nil {
			return Server{}, err
		}
		if len(names) == 0 {
			return Server{}, ErrNotConfigured
		}
		defaultName = names[0]
	}
	server, err := LoadNamedServer(defaultName)
	if errors.Is(err, ErrServerNotFound) {
		return Server{}, ErrNotConfigured
	}
	return server, err
}

// DeleteServer removes a stored server. If it was the default, the first
// remaining server becomes the default.
func DeleteServer(name string) error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	if err := ring.Remove(serverKey(name)); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrServerNotFound, name)
		}
		return fmt.Errorf("failed to remove server: %w", err)
	}

	names, err := loadServerIndex(ring)
	if err != nil {
		return err
	}
	var remaining []string
	for _, n := range names {
		if n != name {
			remaining = append(remaining, n)
		}
	}
	if err := saveServerIndex(ring, remaining); err != nil {
		return err
	}

	current, err := defaultNameOn(ring)
	if err == nil && current == name {
		next := ""
		if len(remaining) > 0 {
			next = remaining[0]
		}
		if next == "" {
			_ = ring.Remove(defaultServerKey)
		} else {
			_ = setDefaultOn(ring, next)
		}
	}

	return nil
}

// ListServers returns the configured server names, sorted.
func ListServers() ([]string, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	names, err := loadServerIndex(ring)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DefaultServerName returns the default server's name, "" when unset.
func DefaultServerName() (string, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}
	return defaultNameOn(ring)
}

func defaultNameOn(ring keyring.Keyring) (string, error) {
	item, err := ring.Get(defaultServerKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get default server: %w", err)
	}
	return string(item.Data), nil
}

// SetDefaultServer marks a configured server as the default.
func SetDefaultServer(name string) error {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	if _, err := ring.Get(serverKey(name)); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrServerNotFound, name)
		}
		return fmt.Errorf("failed to get server: %w", err)
	}

	return setDefaultOn(ring, name)
}

func setDefaultOn(ring keyring.Keyring, name string) error {
	return ring.Set(keyring.Item{
		Key:  defaultServerKey,
		Data: []byte(name),
	})
}

// HasServer reports whether any server is usable (env or registry).
func HasServer() bool {
	_, err := LoadServer("")
	return err == nil
}

// MaskKey renders an API key for display, keeping the first and last four
// characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

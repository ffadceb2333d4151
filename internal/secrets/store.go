package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
)

const storeVersion = "1.0"

// FileTokenStore keeps one encrypted refresh token record per provider in a
// JSON file. When the file has no entry for a provider, Load falls back to
// the <PROVIDER>_ENCRYPTED_REFRESH_TOKEN environment variable so a freshly
// deployed process can bootstrap from its environment.
//
// Replace writes a temp file in the same directory and renames it over the
// store, so the old record stays readable until the new one is fully
// committed. Losing that guarantee would strand the rotating provider with
// no usable token until a human re-runs interactive setup.
type FileTokenStore struct {
	path string
	env  func(string) string

	mu sync.Mutex
}

// StoreOption configures a FileTokenStore.
type StoreOption func(*FileTokenStore)

// WithEnvLookup overrides the environment lookup used for bootstrap reads.
func WithEnvLookup(lookup func(string) string) StoreOption {
	return func(s *FileTokenStore) {
		s.env = lookup
	}
}

func NewFileTokenStore(path string, opts ...StoreOption) *FileTokenStore {
	s := &FileTokenStore{
		path: path,
		env:  os.Getenv,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type storeFile struct {
	Version string                     `json:"version"`
	Tokens  map[string]storedToken     `json:"tokens"`
	Meta    map[string]json.RawMessage `json:"_metadata,omitempty"`
}

type storedToken struct {
	EncryptedRefreshToken string    `json:"encrypted_refresh_token"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Load returns the encrypted record for provider, preferring the store file
// and falling back to the environment. Returns domain.ErrNoStoredToken when
// neither holds a value.
func (s *FileTokenStore) Load(ctx context.Context, provider domain.Provider) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return "", err
	}

	if entry, ok := file.Tokens[string(provider)]; ok && entry.EncryptedRefreshToken != "" {
		return entry.EncryptedRefreshToken, nil
	}

	envKey := provider.EnvPrefix() + "_ENCRYPTED_REFRESH_TOKEN"
	if record := s.env(envKey); record != "" {
		log.Debug().
			Str("provider", string(provider)).
			Str("env_var", envKey).
			Msg("Token store has no entry, bootstrapping from environment")
		return record, nil
	}

	return "", fmt.Errorf("provider %s: %w", provider, domain.ErrNoStoredToken)
}

// Replace persists a new encrypted record for provider. The write is atomic:
// temp file in the same directory, then rename.
func (s *FileTokenStore) Replace(ctx context.Context, provider domain.Provider, record string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	if file.Tokens == nil {
		file.Tokens = map[string]storedToken{}
	}

	file.Tokens[string(provider)] = storedToken{
		EncryptedRefreshToken: record,
		UpdatedAt:             time.Now().UTC(),
	}
	file.Version = storeVersion

	if err := s.write(file); err != nil {
		return fmt.Errorf("failed to persist token for %s: %w", provider, err)
	}

	log.Info().
		Str("provider", string(provider)).
		Str("path", s.path).
		Msg("Stored rotated refresh token")

	return nil
}

// Info reports whether a record exists for provider and when it was last
// updated, without decrypting anything.
func (s *FileTokenStore) Info(provider domain.Provider) (exists bool, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return false, time.Time{}
	}

	entry, ok := file.Tokens[string(provider)]
	if !ok || entry.EncryptedRefreshToken == "" {
		envKey := provider.EnvPrefix() + "_ENCRYPTED_REFRESH_TOKEN"
		return s.env(envKey) != "", time.Time{}
	}

	return true, entry.UpdatedAt
}

func (s *FileTokenStore) read() (storeFile, error) {
	file := storeFile{Tokens: map[string]storedToken{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return file, fmt.Errorf("failed to read token store %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, &file); err != nil {
		return storeFile{}, fmt.Errorf("token store %s is corrupt: %w", s.path, err)
	}

	if file.Tokens == nil {
		file.Tokens = map[string]storedToken{}
	}

	return file, nil
}

func (s *FileTokenStore) write(file storeFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token store directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit token store: %w", err)
	}

	return nil
}

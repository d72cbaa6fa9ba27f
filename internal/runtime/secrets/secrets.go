// Package secrets implements the secret-fetcher closure handed to user
// handlers through HandlerContext and used by the tracker to load
// service credentials before writing status documents.
package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// DefaultServiceAccountPath is the tracker's default secret location
// when a request omits `firebaseSecretLocation`.
const DefaultServiceAccountPath = "firebase/SERVICE_ACCOUNT"

// Fetcher is the closure type exposed on HandlerContext: given a secret
// path, it returns the decoded secret document.
type Fetcher func(ctx context.Context, path string) (map[string]any, error)

// Store wraps a Vault client bound to a KV mount.
type Store struct {
	client *vault.Client
	mount  string
}

// NewStore connects to Vault at address, authenticating with token, and
// scopes subsequent reads under the given KV mount (e.g. "secret").
func NewStore(address, token, mount string) (*Store, error) {
	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	if mount == "" {
		mount = "secret"
	}
	return &Store{client: client, mount: mount}, nil
}

// Fetch reads path under the KV mount and returns its decoded document.
// It understands both KV v1 (flat Data) and KV v2 (Data.data) shapes.
func (s *Store) Fetch(ctx context.Context, path string) (map[string]any, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.fullPath(path))
	if err != nil {
		return nil, fmt.Errorf("secrets: read %q: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets: no secret found at %q", path)
	}

	return decodeSecretData(secret.Data), nil
}

// decodeSecretData unwraps the KV v2 `{data: {...}}` envelope if present,
// otherwise returns the flat KV v1 document unchanged.
func decodeSecretData(data map[string]any) map[string]any {
	if nested, ok := data["data"].(map[string]any); ok {
		return nested
	}
	return data
}

func (s *Store) fullPath(path string) string {
	return s.mount + "/" + path
}

// Fetcher returns the closure form of this store, bound for the
// HandlerContext or the tracker.
func (s *Store) Fetcher() Fetcher {
	return s.Fetch
}

// internal/common/secrets/secrets.go
package secrets

import (
	"context"
	"os"
	"strings"

	pipelineerrors "gearbox-workers/internal/common/errors"
)

// Store resolves tenant-scoped secrets such as search API keys. Lookups
// never read ambient process credentials directly from worker code; all
// access goes through a scope and key pair.
type Store interface {
	GetSecret(ctx context.Context, scope, key string) (string, error)
}

// EnvStore reads secrets from environment variables following the
// convention TENANT_<SCOPE>_<KEY>, with dashes mapped to underscores.
type EnvStore struct {
	prefix string
}

func NewEnvStore() *EnvStore {
	return &EnvStore{prefix: "TENANT"}
}

func (s *EnvStore) GetSecret(_ context.Context, scope, key string) (string, error) {
	name := s.prefix + "_" + normalize(scope) + "_" + normalize(key)
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	return "", pipelineerrors.NewSecretUnavailableError(scope, key)
}

func normalize(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(s))
}

// StaticStore serves secrets from a fixed map, for tests.
type StaticStore struct {
	Values map[string]string
}

func (s *StaticStore) GetSecret(_ context.Context, scope, key string) (string, error) {
	if val, ok := s.Values[scope+"/"+key]; ok {
		return val, nil
	}
	return "", pipelineerrors.NewSecretUnavailableError(scope, key)
}

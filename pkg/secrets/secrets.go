// Package secrets resolves credential references from configuration.
//
// A reference is one of:
//
//	plain-value                          used as is
//	env:NAME                             value of environment variable NAME
//	file:/path/to/token                  file contents, surrounding whitespace trimmed
//	gsm://projects/P/secrets/S           Google Secret Manager, latest version
//	gsm://projects/P/secrets/S/versions/V
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

var ErrNotFound = errors.New("secret not found")

// SecretAccessor is the subset of the Secret Manager client used here.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type Resolver struct {
	logger *slog.Logger

	mu  sync.Mutex
	gsm SecretAccessor
	// newGSM lazily builds the client the first time a gsm:// reference is seen.
	newGSM func(ctx context.Context) (SecretAccessor, error)
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		newGSM: func(ctx context.Context) (SecretAccessor, error) {
			return secretmanager.NewClient(ctx)
		},
	}
}

// WithAccessor uses the given Secret Manager client instead of creating one.
func (r *Resolver) WithAccessor(a SecretAccessor) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gsm = a
	return r
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("env %s: %w", name, ErrNotFound)
		}
		return v, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
			}
			return "", fmt.Errorf("read secret file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(ref, "gsm://"):
		return r.resolveGSM(ctx, strings.TrimPrefix(ref, "gsm://"))
	default:
		return ref, nil
	}
}

func (r *Resolver) resolveGSM(ctx context.Context, name string) (string, error) {
	name = strings.Trim(name, "/")
	if !strings.HasPrefix(name, "projects/") || !strings.Contains(name, "/secrets/") {
		return "", fmt.Errorf("invalid secret manager reference %q", name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}

	client, err := r.accessor(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	if r.logger != nil {
		r.logger.Debug("Resolved secret from Secret Manager", "name", name)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func (r *Resolver) accessor(ctx context.Context) (SecretAccessor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gsm != nil {
		return r.gsm, nil
	}
	client, err := r.newGSM(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	r.gsm = client
	return client, nil
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gsm != nil {
		err := r.gsm.Close()
		r.gsm = nil
		return err
	}
	return nil
}

// Package secrets resolves the named secrets a definition declares.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Store looks up a secret by name. ok is false when the secret is not set.
type Store interface {
	Lookup(ctx context.Context, name string) (value string, ok bool, err error)
}

// EnvStore reads secrets from the process environment, optionally under a
// prefix (Prefix "HANDS_SECRET_" maps API_TOKEN to HANDS_SECRET_API_TOKEN).
type EnvStore struct {
	Prefix string
}

func (s EnvStore) Lookup(_ context.Context, name string) (string, bool, error) {
	v, ok := os.LookupEnv(s.Prefix + name)
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// MapStore is a fixed in-memory store.
type MapStore map[string]string

func (m MapStore) Lookup(_ context.Context, name string) (string, bool, error) {
	v, ok := m[name]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// chain consults stores in order; the first hit wins.
type chain []Store

// Chain combines stores. Nil stores are skipped.
func Chain(stores ...Store) Store {
	c := make(chain, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			c = append(c, s)
		}
	}
	return c
}

func (c chain) Lookup(ctx context.Context, name string) (string, bool, error) {
	for _, s := range c {
		v, ok, err := s.Lookup(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Resolve looks up every name. Missing names are returned sorted; an error
// is returned only when a store fails.
func Resolve(ctx context.Context, store Store, names []string) (map[string]string, []string, error) {
	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		if store == nil {
			missing = append(missing, name)
			continue
		}
		v, ok, err := store.Lookup(ctx, name)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup secret %q: %w", name, err)
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	sort.Strings(missing)
	return values, missing, nil
}

// MissingError formats the failure reported when declared secrets are unset.
func MissingError(missing []string) string {
	return "missing required secrets: " + strings.Join(missing, ", ")
}

package secrets

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("locked")
}

func TestResolve(t *testing.T) {
	t.Setenv("HANDS_SECRET_FROM_ENV", "env-value")
	store := Chain(MapStore{"API_TOKEN": "tok", "EMPTY": ""}, nil, EnvStore{Prefix: "HANDS_SECRET_"})

	values, missing, err := Resolve(context.Background(), store, []string{"ZED", "API_TOKEN", "FROM_ENV", "EMPTY", "ALPHA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["API_TOKEN"] != "tok" || values["FROM_ENV"] != "env-value" {
		t.Errorf("unexpected values %v", values)
	}
	if want := []string{"ALPHA", "EMPTY", "ZED"}; !reflect.DeepEqual(missing, want) {
		t.Errorf("missing = %v, want %v", missing, want)
	}
	if MissingError(missing) != "missing required secrets: ALPHA, EMPTY, ZED" {
		t.Errorf("MissingError = %q", MissingError(missing))
	}
}

func TestResolve_StoreError(t *testing.T) {
	_, _, err := Resolve(context.Background(), failingStore{}, []string{"A"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestResolve_NilStore(t *testing.T) {
	_, missing, err := Resolve(context.Background(), nil, []string{"A"})
	if err != nil || len(missing) != 1 {
		t.Errorf("expected A missing, got %v %v", missing, err)
	}
}

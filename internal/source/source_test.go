package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/task"
)

const validDef = `
name: Hacker News
kind: sql
schedule: "*/15 * * * *"
secrets: [HN_TOKEN]
timeout: 30s
schema:
  tables:
    - name: stories
      columns:
        - name: id
          type: integer
        - name: title
          type: text
          not_null: true
        - name: score
          type: int
          optional: true
config:
  statements:
    - SELECT 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(validDef), nil)
	require.NoError(t, err)

	assert.Equal(t, "Hacker News", def.Name)
	assert.Equal(t, "sql", def.Kind)
	assert.Equal(t, 30*time.Second, def.Timeout)
	assert.Equal(t, []string{"HN_TOKEN"}, def.Secrets)
	require.Len(t, def.Schema.Tables, 1)

	cols := def.Schema.Tables[0].Columns
	assert.Equal(t, model.TypeInteger, cols[0].Type)
	assert.True(t, cols[1].NotNull)
	assert.Equal(t, model.TypeInteger, cols[2].Type, "int alias normalizes to INTEGER")
	assert.True(t, cols[2].Optional)
}

func TestParseDefinition_JSON(t *testing.T) {
	def, err := ParseDefinition([]byte(`{"kind": "sql", "config": {"query": "SELECT 1"}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "sql", def.Kind)
	assert.Equal(t, "SELECT 1", def.Config["query"])
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"missing kind", "name: x\n", "Kind is required"},
		{"unknown field", "kind: sql\nbogus: 1\n", "field bogus not found"},
		{"bad table name", "kind: sql\nschema:\n  tables:\n    - name: \"bad name\"\n", "not a valid identifier"},
		{"empty secret", "kind: sql\nsecrets: [\"\"]\n", "is required"},
		{"negative timeout", "kind: sql\ntimeout: -5s\n", "failed gte"},
		{"malformed", "kind: [", "parse definition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.data), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDefinition_ScheduleHook(t *testing.T) {
	reject := func(string) error { return errors.New("bad expression") }

	_, err := ParseDefinition([]byte("kind: sql\nschedule: nope\n"), reject)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid schedule "nope"`)

	_, err = ParseDefinition([]byte("kind: sql\n"), reject)
	assert.NoError(t, err, "hook is not called without a schedule")
}

func TestBuild(t *testing.T) {
	kinds := task.Builtins()

	def, err := ParseDefinition([]byte(validDef), nil)
	require.NoError(t, err)

	src, err := Build("hackernews", TypeSource, "/w/sources/hackernews.yaml", def, kinds)
	require.NoError(t, err)
	assert.Equal(t, "hackernews", src.ID)
	assert.NotNil(t, src.Handler)
	assert.True(t, src.HasSchema())

	_, err = Build("-bad", TypeSource, "", def, kinds)
	assert.ErrorContains(t, err, "invalid id")

	unknown := &Definition{Kind: "carrier_pigeon"}
	_, err = Build("x", TypeSource, "", unknown, kinds)
	assert.ErrorIs(t, err, task.ErrUnknownKind)

	noName := &Definition{Kind: "sql", Config: map[string]interface{}{"query": "SELECT 1"}}
	src, err = Build("orders", TypeAction, "", noName, kinds)
	require.NoError(t, err)
	assert.Equal(t, "orders", src.Definition.Name)
	assert.False(t, src.HasSchema())
}

func TestValidateInput(t *testing.T) {
	def := &Definition{
		Kind:   "sql",
		Config: map[string]interface{}{"query": "SELECT 1"},
		Input: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"limit"},
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{"type": "integer", "minimum": 1},
			},
		},
	}
	src, err := Build("top", TypeAction, "", def, task.Builtins())
	require.NoError(t, err)

	assert.NoError(t, src.ValidateInput(map[string]interface{}{"limit": 10}))

	err = src.ValidateInput(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")

	assert.Error(t, src.ValidateInput(map[string]interface{}{"limit": 0}))

	free, err := Build("free", TypeAction, "", &Definition{Kind: "sql", Config: map[string]interface{}{"query": "SELECT 1"}}, task.Builtins())
	require.NoError(t, err)
	assert.NoError(t, free.ValidateInput(nil))
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "kind: sql")
	writeFile(t, dir, "b.json", `{"kind":"sql"}`)
	writeFile(t, dir, "c/source.yml", "kind: sql")
	writeFile(t, dir, "d/action.yaml", "kind: sql")
	writeFile(t, dir, "e/nested/deep.yaml", "kind: sql")
	writeFile(t, dir, ".hidden.yaml", "kind: sql")
	writeFile(t, dir, "README.md", "# notes")

	raws, errs := FileLoader{}.Scan(dir)
	assert.Empty(t, errs)

	ids := make([]string, 0, len(raws))
	for _, r := range raws {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids)

	raws, errs = FileLoader{}.Scan(filepath.Join(dir, "missing"))
	assert.Empty(t, raws)
	assert.Empty(t, errs)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")
	writeFile(t, dir, "alpha.yaml", "kind: sql\nconfig:\n  query: SELECT 2\n")
	broken := writeFile(t, dir, "broken.yaml", "kind: [")
	writeFile(t, dir, "unknown.yaml", "kind: carrier_pigeon\n")

	result := Discover(FileLoader{}, dir, TypeSource, task.Builtins(), nil)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, "alpha", result.Sources[0].ID)
	assert.Equal(t, "good", result.Sources[1].ID)
	assert.Equal(t, TypeSource, result.Sources[0].Type)

	require.Len(t, result.Errors, 2)
	files := []string{result.Errors[0].File, result.Errors[1].File}
	assert.Contains(t, files, broken)
}

func TestDiscover_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dup.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")
	writeFile(t, dir, "dup/source.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")

	result := Discover(FileLoader{}, dir, TypeSource, task.Builtins(), nil)
	assert.Len(t, result.Sources, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, `duplicate id "dup"`)
}

func TestRegistryLoad(t *testing.T) {
	root := t.TempDir()
	sources := filepath.Join(root, "sources")
	actions := filepath.Join(root, "actions")
	writeFile(t, sources, "orders.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")
	writeFile(t, sources, "users.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")
	writeFile(t, actions, "digest.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")

	reg := NewRegistry(FileLoader{}, task.Builtins(), []Root{
		{Dir: sources, Type: TypeSource},
		{Dir: actions, Type: TypeAction},
	})
	assert.Empty(t, reg.IDs())
	assert.True(t, reg.LoadedAt().IsZero())

	errs := reg.Load(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"digest", "orders", "users"}, reg.IDs())
	assert.False(t, reg.LoadedAt().IsZero())

	digest, ok := reg.Get("digest")
	require.True(t, ok)
	assert.Equal(t, TypeAction, digest.Type)
	assert.True(t, reg.Has("orders"))
	assert.False(t, reg.Has("nope"))

	// Removing a file and breaking another replaces the view wholesale.
	require.NoError(t, os.Remove(filepath.Join(sources, "users.yaml")))
	writeFile(t, sources, "orders.yaml", "kind: [")

	errs = reg.Load(context.Background())
	require.Len(t, errs, 1)
	assert.Equal(t, []string{"digest"}, reg.IDs())
	assert.Equal(t, errs, reg.Errors())

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "digest", list[0].ID)
}

func TestRegistryLoad_DuplicateAcrossRoots(t *testing.T) {
	root := t.TempDir()
	sources := filepath.Join(root, "sources")
	actions := filepath.Join(root, "actions")
	writeFile(t, sources, "sync.yaml", "kind: sql\nconfig:\n  query: SELECT 1\n")
	later := writeFile(t, actions, "sync.yaml", "kind: sql\nconfig:\n  query: SELECT 2\n")

	reg := NewRegistry(FileLoader{}, task.Builtins(), []Root{
		{Dir: sources, Type: TypeSource},
		{Dir: actions, Type: TypeAction},
	})
	errs := reg.Load(context.Background())

	require.Len(t, errs, 1)
	assert.Equal(t, later, errs[0].File)
	src, ok := reg.Get("sync")
	require.True(t, ok)
	assert.Equal(t, TypeSource, src.Type)
}

func TestRegistryLoad_ScheduleCheck(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nightly.yaml", "kind: sql\nschedule: \"@nightly-ish\"\nconfig:\n  query: SELECT 1\n")

	reg := NewRegistry(FileLoader{}, task.Builtins(), []Root{{Dir: dir, Type: TypeSource}},
		WithScheduleCheck(func(expr string) error { return errors.New("unsupported") }))

	errs := reg.Load(context.Background())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "invalid schedule")
	assert.Empty(t, reg.IDs())
}

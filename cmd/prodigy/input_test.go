package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/subprocess"
)

func TestResolveMapInputReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[]}`), 0o644))

	data, err := resolveMapInput(context.Background(), subprocess.NewFakeRunner(), dir, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(data))
}

func TestResolveMapInputRunsShellDirective(t *testing.T) {
	fake := subprocess.NewFakeRunner()
	fake.On("sh -c", func(subprocess.Call) (subprocess.Result, error) {
		return subprocess.Result{Stdout: `{"items":[1]}`, ExitCode: 0}, nil
	})

	data, err := resolveMapInput(context.Background(), fake, t.TempDir(), `shell:echo '{"items":[1]}'`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[1]}`, string(data))
}

func TestResolveMapInputAcceptsLiteralJSON(t *testing.T) {
	data, err := resolveMapInput(context.Background(), subprocess.NewFakeRunner(), t.TempDir(), `{"items":[]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(data))
}

func TestResolveMapInputRejectsGarbage(t *testing.T) {
	_, err := resolveMapInput(context.Background(), subprocess.NewFakeRunner(), t.TempDir(), "not-a-path-or-json")
	require.Error(t, err)
}

package compose

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	recipePath = "/p/.draky/env/dev/docker-compose.recipe.yml"
	outputPath = "/p/.draky/env/dev/docker-compose.yml"
)

// countingFs records how many times each file is opened.
type countingFs struct {
	afero.Fs

	mu    sync.Mutex
	opens map[string]int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.Fs.Open(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.Fs.OpenFile(name, flag, perm)
}

func newFs(t *testing.T, files map[string]string) *countingFs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return &countingFs{Fs: fs, opens: make(map[string]int)}
}

func expand(t *testing.T, files map[string]string, recipe string, opts ...ExpandOption) (*Compose, error) {
	t.Helper()

	r, err := ParseRecipe([]byte(recipe))
	require.NoError(t, err)
	return NewExpander(newFs(t, files), zerolog.Nop()).Expand(r, recipePath, outputPath, nil, opts...)
}

func service(t *testing.T, c *Compose, name string) map[string]any {
	t.Helper()

	s, err := c.Service(name)
	require.NoError(t, err)
	return s
}

package compose

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draky-dev/draky/pkg/config"
	"github.com/draky-dev/draky/pkg/engine"
)

func expandWith(t *testing.T, recipe string, vars *config.VariableSet) *Compose {
	t.Helper()

	r, err := ParseRecipe([]byte(recipe))
	require.NoError(t, err)
	c, err := NewExpander(afero.NewMemMapFs(), zerolog.Nop()).Expand(r, recipePath, outputPath, vars)
	require.NoError(t, err)
	return c
}

func TestCompose_Marshal(t *testing.T) {
	vars := config.NewVariableSet()
	vars.Set("DB_NAME", "shop")

	c := expandWith(t, "services:\n  db:\n    image: mariadb\n    environment:\n      MYSQL_DATABASE: db_${DB_NAME}\n", vars)

	data, err := c.Marshal()
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, Header))
	assert.Contains(t, text, "MYSQL_DATABASE: db_${DB_NAME}")

	c.SetSubstituteVariables(true)
	assert.True(t, c.SubstituteVariables())
	data, err = c.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "MYSQL_DATABASE: db_shop")

	// The substituted text must still be a valid document.
	_, err = ParseRecipe(data)
	require.NoError(t, err)
}

func TestCompose_Marshal_UnknownVariable(t *testing.T) {
	c := expandWith(t, "services:\n  db:\n    image: ${MISSING}\n", config.NewVariableSet())
	c.SetSubstituteVariables(true)

	_, err := c.Marshal()
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.ErrCodeVariableNotFound))

	var e *engine.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "MISSING", e.Variable)
}

func TestCompose_Save(t *testing.T) {
	c := expandWith(t, "services:\n  app:\n    image: nginx\n", nil)
	fs := afero.NewMemMapFs()

	require.NoError(t, c.Save(fs))

	data, err := afero.ReadFile(fs, outputPath)
	require.NoError(t, err)
	assert.Equal(t, Header+"services:\n  app:\n    image: nginx\n", string(data))
}

func TestCompose_Service(t *testing.T) {
	c := expandWith(t, "services:\n  app:\n    image: nginx\n", nil)

	_, err := c.Service("missing")
	assert.True(t, engine.HasCode(err, engine.ErrCodeNotFound))

	c.SetService("cache", map[string]any{"image": "redis"})
	assert.Equal(t, []string{"app", "cache"}, c.Services())
	assert.Equal(t, outputPath, c.Path())
	assert.NotNil(t, c.Recipe())
}

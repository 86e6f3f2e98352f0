package compose

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draky-dev/draky/pkg/engine"
)

const addonServices = `
version: "3.8"
volumes:
  php-data: {}
networks:
  backend:
    driver: bridge
services:
  php:
    image: php:8.2
    command: php-fpm
    volumes:
      - ./data:/app/data
      - /srv/shared:/shared
      - ${DRAKY_PROJECT_ROOT}/app:/var/www
      - ~/cache:/cache
      - php-data:/var/lib/php
      - /anonymous
      - type: bind
        source: ./conf
        target: /etc/php
      - type: volume
        source: php-data
        target: /data
    build:
      context: ./docker
      dockerfile: Dockerfile.dev
    env_file: .env
  worker:
    image: php:8.2
    build:
      dockerfile: ./Dockerfile.worker
  scalar: nope
`

func TestExpand_FlatRecipeIsUnchanged(t *testing.T) {
	recipe := `
services:
  app:
    image: nginx
    volumes:
      - ./html:/usr/share/nginx/html
    build: ./docker
    draky:
      addons: [web]
  db:
    image: mariadb
`
	c, err := expand(t, nil, recipe)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "db"}, c.Services())
	assert.Equal(t, map[string]any{
		"image":   "nginx",
		"volumes": []any{"./html:/usr/share/nginx/html"},
		"build":   "./docker",
	}, service(t, c, "app"))
	assert.Equal(t, map[string]any{"image": "mariadb"}, service(t, c, "db"))
}

func TestExpand_LocalKeysWin(t *testing.T) {
	files := map[string]string{"/p/.draky/addons/php/services.yml": addonServices}
	recipe := `
services:
  php:
    extends:
      file: ../../addons/php/services.yml
      service: php
    command: php -S 0.0.0.0:80
    depends_on: [db]
  db:
    image: mariadb
`
	c, err := expand(t, files, recipe)
	require.NoError(t, err)

	php := service(t, c, "php")
	assert.Equal(t, "php -S 0.0.0.0:80", php["command"])
	assert.Equal(t, "php:8.2", php["image"])
	assert.Equal(t, []any{"db"}, php["depends_on"])
	assert.NotContains(t, php, "extends")
}

func TestExpand_RewritesPathsRelativeToExtendedFile(t *testing.T) {
	files := map[string]string{"/p/.draky/addons/php/services.yml": addonServices}
	recipe := `
services:
  php:
    extends:
      file: ../../addons/php/services.yml
      service: php
  worker:
    extends:
      file: ../../addons/php/services.yml
`
	c, err := expand(t, files, recipe)
	require.NoError(t, err)

	php := service(t, c, "php")
	assert.Equal(t, []any{
		"../../addons/php/data:/app/data",
		"/srv/shared:/shared",
		"${DRAKY_PROJECT_ROOT}/app:/var/www",
		"~/cache:/cache",
		"php-data:/var/lib/php",
		"/anonymous",
		map[string]any{"type": "bind", "source": "../../addons/php/conf", "target": "/etc/php"},
		map[string]any{"type": "volume", "source": "php-data", "target": "/data"},
	}, php["volumes"])
	assert.Equal(t, map[string]any{
		"context":    "../../addons/php/docker",
		"dockerfile": "Dockerfile.dev",
	}, php["build"])
	assert.Equal(t, "../../addons/php/.env", php["env_file"])

	// The rewritten path points at the same directory once read from the output location.
	assert.Equal(t,
		"/p/.draky/addons/php/data",
		filepath.Join(filepath.Dir(outputPath), "../../addons/php/data"),
	)

	worker := service(t, c, "worker")
	assert.Equal(t, map[string]any{"dockerfile": "../../addons/php/Dockerfile.worker"}, worker["build"])
}

func TestExpand_ExtendedFileLoadedOnce(t *testing.T) {
	fs := newFs(t, map[string]string{"/p/.draky/addons/php/services.yml": addonServices})
	recipe, err := ParseRecipe([]byte(`
services:
  php:
    extends: {file: ../../addons/php/services.yml, service: php}
  php2:
    extends: {file: ../../addons/php/services.yml, service: php}
  worker:
    extends: {file: ../../addons/php/services.yml}
`))
	require.NoError(t, err)

	c, err := NewExpander(fs, zerolog.Nop()).Expand(recipe, recipePath, outputPath, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fs.opens["/p/.draky/addons/php/services.yml"])

	// Each service gets its own copy.
	service(t, c, "php")["image"] = "changed"
	assert.Equal(t, "php:8.2", service(t, c, "php2")["image"])
}

func TestExpand_MergesTopLevelKeys(t *testing.T) {
	files := map[string]string{
		"/p/.draky/addons/php/services.yml": addonServices,
		"/p/.draky/addons/db/services.yml": `
version: "3.4"
volumes:
  db-data: {}
services:
  db:
    image: mariadb
    volumes:
      - db-data:/var/lib/mysql
`,
	}
	recipe := `
version: "3"
networks:
  backend:
    driver: overlay
services:
  php:
    extends: {file: ../../addons/php/services.yml, service: php}
  db:
    extends: {file: ../../addons/db/services.yml, service: db}
`
	c, err := expand(t, files, recipe)
	require.NoError(t, err)

	content := c.Content()
	assert.Equal(t, "3.8", content["version"])
	assert.Equal(t, map[string]any{"php-data": map[string]any{}, "db-data": map[string]any{}}, content["volumes"])
	assert.Equal(t, map[string]any{"backend": map[string]any{"driver": "overlay"}}, content["networks"])

	// Named volumes declared by any extended file are not rewritten.
	assert.Equal(t, []any{"db-data:/var/lib/mysql"}, service(t, c, "db")["volumes"])
}

func TestExpand_UnquotedVersionsCompareAsWritten(t *testing.T) {
	files := map[string]string{
		"/p/.draky/addons/db/services.yml": `
version: 3.10
services:
  db:
    image: mariadb
`,
	}
	recipe := `
version: 3.8
services:
  db:
    extends: {file: ../../addons/db/services.yml, service: db}
`
	c, err := expand(t, files, recipe)
	require.NoError(t, err)
	assert.Equal(t, "3.10", c.Content()["version"])
}

func TestExpand_Metadata(t *testing.T) {
	recipe := `
services:
  app:
    image: nginx
    draky:
      addons: [web]
`
	cleaned, err := expand(t, nil, recipe)
	require.NoError(t, err)
	assert.NotContains(t, service(t, cleaned, "app"), MetadataKey)

	uncleaned, err := expand(t, nil, recipe, WithUncleaned())
	require.NoError(t, err)
	addons, err := uncleaned.Addons("app")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, addons)
}

func TestExpand_Errors(t *testing.T) {
	files := map[string]string{
		"/p/.draky/addons/php/services.yml": addonServices,
		"/p/.draky/addons/empty.yml":        "version: '3'\n",
	}

	tests := []struct {
		name     string
		recipe   string
		wantCode string
		service  string
		file     string
	}{
		{
			name:     "service not a mapping",
			recipe:   "services:\n  app: nginx\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
		},
		{
			name:     "extends not a mapping",
			recipe:   "services:\n  app:\n    extends: other\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
		},
		{
			name:     "extends without file",
			recipe:   "services:\n  app:\n    extends: {service: php}\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
		},
		{
			name:     "extends with invalid service",
			recipe:   "services:\n  app:\n    extends: {file: ../../addons/php/services.yml, service: [php]}\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
		},
		{
			name:     "missing extended file",
			recipe:   "services:\n  app:\n    extends: {file: missing.yml, service: php}\n",
			wantCode: engine.ErrCodeIO,
			service:  "app",
			file:     "/p/.draky/env/dev/missing.yml",
		},
		{
			name:     "extended file without services",
			recipe:   "services:\n  app:\n    extends: {file: ../../addons/empty.yml, service: php}\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
			file:     "/p/.draky/addons/empty.yml",
		},
		{
			name:     "missing extended service",
			recipe:   "services:\n  app:\n    extends: {file: ../../addons/php/services.yml, service: nginx}\n",
			wantCode: engine.ErrCodeNotFound,
			service:  "app",
			file:     "/p/.draky/addons/php/services.yml",
		},
		{
			name:     "extended service not a mapping",
			recipe:   "services:\n  app:\n    extends: {file: ../../addons/php/services.yml, service: scalar}\n",
			wantCode: engine.ErrCodeValidation,
			service:  "app",
			file:     "/p/.draky/addons/php/services.yml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expand(t, files, tt.recipe)
			require.Error(t, err)
			assert.True(t, engine.HasCode(err, tt.wantCode), "got %v", err)

			var e *engine.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.service, e.Service)
			if tt.file != "" {
				assert.Equal(t, tt.file, e.File)
			}
		})
	}
}

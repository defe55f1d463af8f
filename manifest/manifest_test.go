package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopMotionIsValid(t *testing.T) {
	m := StopMotion()
	require.NoError(t, m.Validate())
	assert.Equal(t, DefaultVersion, m.Version)
	assert.Contains(t, m.Resources, "./index.html")
	assert.Contains(t, m.Resources, "./js/assets.js")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		m    Manifest
		want error
	}{
		{"no version", Manifest{Resources: []string{"./"}}, ErrNoVersion},
		{"no resources", Manifest{Version: "v1"}, ErrNoResources},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.m.Validate(), tc.want))
		})
	}

	err := Manifest{Version: "v1", Resources: []string{"./a", "./a"}}.Validate()
	assert.ErrorContains(t, err, "duplicate")

	err = Manifest{Version: "v1", Resources: []string{"./a", " "}}.Validate()
	assert.ErrorContains(t, err, "empty")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "m.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`{"version":"v3","resources":["./","./app.js"]}`), 0o600))
	m, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Manifest{Version: "v3", Resources: []string{"./", "./app.js"}}, m)

	yamlPath := filepath.Join(dir, "m.yml")
	require.NoError(t, os.WriteFile(yamlPath,
		[]byte("version: v4\nresources:\n  - ./\n  - ./style.css\n"), 0o600))
	m, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "v4", m.Version)
	assert.Equal(t, []string{"./", "./style.css"}, m.Resources)

	badPath := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("version: v5\n"), 0o600))
	_, err = Load(badPath)
	assert.ErrorIs(t, err, ErrNoResources)

	_, err = Load(filepath.Join(dir, "m.toml"))
	assert.Error(t, err)
}

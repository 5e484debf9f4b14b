package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Fragments(t *testing.T) {
	r, err := New("../../web/templates/fragments")
	require.NoError(t, err)

	html, err := r.Render("select-option", map[string]string{"Value": `R-1"`, "Label": "R-1 <east>"})
	require.NoError(t, err)
	assert.Equal(t, `<option value="R-1&#34;">R-1 &lt;east&gt;</option>`, html)

	html, err = r.Render("layer-status", map[string]any{"Layer": "rooms", "Ready": true, "Features": 12, "Error": ""})
	require.NoError(t, err)
	assert.Contains(t, html, `class="layer-status ready"`)
	assert.Contains(t, html, "rooms (12)")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestRenderer_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.html")
	require.NoError(t, os.WriteFile(path, []byte(`{{define "a"}}one{{end}}`), 0644))

	r, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`{{define "a"}}two{{end}}`), 0644))
	require.NoError(t, r.Reload(dir))

	out, err := r.Render("a", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)

	require.NoError(t, os.WriteFile(path, []byte(`{{define "a"}}{{end`), 0644))
	assert.Error(t, r.Reload(dir))
	out, _ = r.Render("a", nil)
	assert.Equal(t, "two", out, "failed reload keeps the old templates")
}

func TestNewFS_NoFragments(t *testing.T) {
	_, err := NewFS(fstest.MapFS{})
	assert.Error(t, err)
}

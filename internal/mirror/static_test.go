package mirror

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/renameio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, name, WebSubdir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStaticHandler_FollowsCurrentLink(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, "a", map[string]string{"index.html": "old", "src/app.js": "let a"})
	writeSnapshot(t, root, "b", map[string]string{"index.html": "new"})
	link := filepath.Join(root, currentLink)
	require.NoError(t, renameio.Symlink("a", link))

	h := StaticHandler(link)

	w := get(h, "/index.html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "old", w.Body.String())
	assert.Equal(t, "public", w.Header().Get("Cache-Control"))

	assert.Equal(t, "let a", get(h, "/src/app.js").Body.String())
	assert.Equal(t, "old", get(h, "/").Body.String())

	require.NoError(t, renameio.Symlink("b", link))
	assert.Equal(t, "new", get(h, "/index.html").Body.String())
	assert.Equal(t, http.StatusNotFound, get(h, "/src/app.js").Code)
}

func TestStaticHandler_RejectsHiddenAndMissing(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, "a", map[string]string{"index.html": "x", ".env": "secret"})
	h := StaticHandler(filepath.Join(root, "a"))

	assert.Equal(t, http.StatusNotFound, get(h, "/.env").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/../../etc/passwd").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/nope.html").Code)

	req := httptest.NewRequest(http.MethodPost, "/index.html", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStaticHandler_Gzip(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("<p>sticker</p>\n", 1000)
	writeSnapshot(t, root, "a", map[string]string{"index.html": body})
	h := StaticHandler(filepath.Join(root, "a"))

	w := get(h, "/index.html", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Less(t, w.Body.Len(), len(body))

	w = get(h, "/index.html")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w.Body.String())
}

package mirror

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// WebSubdir is the directory of the repository that is served.
const WebSubdir = "web"

// StaticHandler serves files from dir/web, resolving dir on every request.
// Pass Synchronizer.CurrentDir() so each request reads the snapshot current
// at the moment it opens the file.
func StaticHandler(dir string) http.Handler {
	return gzhttp.GzipHandler(&staticFiles{root: filepath.Join(dir, WebSubdir)})
}

type staticFiles struct {
	root string
}

func (h *staticFiles) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			http.NotFound(w, r)
			return
		}
	}

	f, err := os.Open(filepath.Join(h.root, filepath.FromSlash(name)))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		index, err := os.Open(filepath.Join(f.Name(), "index.html"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer index.Close()
		if info, err = index.Stat(); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		f = index
	}

	w.Header().Set("Cache-Control", "public")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

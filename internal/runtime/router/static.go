package router

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
)

// StaticHandler serves dir under prefix. The prefix is always stripped
// before the file lookup.
func StaticHandler(prefix, dir string, opts StaticOptions) http.Handler {
	var root http.FileSystem = http.Dir(dir)
	if !opts.ShowIndex {
		root = noListingFS{root}
	}
	return http.StripPrefix(prefix, http.FileServer(root))
}

// noListingFS hides directories that have no index.html.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !stat.IsDir() {
		return f, nil
	}

	index, err := n.fs.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, err
	}
	_ = index.Close()
	return f, nil
}

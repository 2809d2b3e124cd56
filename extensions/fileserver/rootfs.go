package fileserver

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// rootFileSystem is http.Dir restricted to files that resolve inside root,
// so symbolic links cannot expose anything outside the served tree.
// Paths are cleaned by http.Dir, which already rules out ".." escapes.
//
// Only an escaping link answers 403. A file that exists but cannot be opened
// is a server fault and answers 500.
type rootFileSystem struct {
	root string
	dir  http.FileSystem
}

func newRootFileSystem(root string) rootFileSystem {
	return rootFileSystem{root: root, dir: http.Dir(root)}
}

func (fsys rootFileSystem) Open(name string) (http.File, error) {
	file, err := fsys.dir.Open(name)
	if err != nil {
		return nil, openFailure(err)
	}
	fullPath := filepath.Join(fsys.root, filepath.FromSlash(path.Clean("/"+name)))
	resolved, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		file.Close()
		return nil, openFailure(err)
	}
	if !within(fsys.root, resolved) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	return file, nil
}

// unreadableError carries an open failure without exposing its cause to
// http.FileServer, which turns anything it cannot classify into a 500.
type unreadableError struct {
	cause error
}

func (e *unreadableError) Error() string {
	return e.cause.Error()
}

func openFailure(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &unreadableError{cause: err}
	}
	return err
}

func within(root, target string) bool {
	relative, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}

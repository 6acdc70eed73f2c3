package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one file surfaced by an ArchiveReader. Err is set when the entry
// was enumerated but its bytes could not be read; such entries are reported
// and skipped rather than aborting the whole run.
type Entry struct {
	Path string
	Data []byte
	Err  error
}

// ArchiveReader streams the files of an import source in a uniform way so the
// pipeline never cares whether it is walking a ZIP or a directory tree.
type ArchiveReader interface {
	// Count is the total number of file entries, known before streaming
	// starts so progress can be computed.
	Count() int
	// Next returns the next entry, or io.EOF when the source is exhausted.
	Next() (*Entry, error)
	Close() error
}

// Open picks a reader for the given source path.
func Open(path string, isDir bool) (ArchiveReader, error) {
	if isDir {
		return OpenDir(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return OpenZip(path)
	}
	return openSingleFile(path)
}

type zipReader struct {
	rc    *zip.ReadCloser
	files []*zip.File
	pos   int
}

// OpenZip opens a ZIP archive. A corrupt central directory fails here, before
// any batch work starts.
func OpenZip(path string) (ArchiveReader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", filepath.Base(path), err)
	}
	var files []*zip.File
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	return &zipReader{rc: rc, files: files}, nil
}

func (z *zipReader) Count() int { return len(z.files) }

func (z *zipReader) Next() (*Entry, error) {
	if z.pos >= len(z.files) {
		return nil, io.EOF
	}
	f := z.files[z.pos]
	z.pos++
	entry := &Entry{Path: f.Name}
	r, err := f.Open()
	if err != nil {
		entry.Err = fmt.Errorf("open entry %s: %w", f.Name, err)
		return entry, nil
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		entry.Err = fmt.Errorf("read entry %s: %w", f.Name, err)
		return entry, nil
	}
	entry.Data = data
	return entry, nil
}

func (z *zipReader) Close() error { return z.rc.Close() }

type dirReader struct {
	root  string
	paths []string
	pos   int
}

// OpenDir walks root up front so the entry count is known, then reads file
// contents lazily as the pipeline consumes them.
func OpenDir(root string) (ArchiveReader, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return &dirReader{root: root, paths: paths}, nil
}

func (d *dirReader) Count() int { return len(d.paths) }

func (d *dirReader) Next() (*Entry, error) {
	if d.pos >= len(d.paths) {
		return nil, io.EOF
	}
	rel := d.paths[d.pos]
	d.pos++
	entry := &Entry{Path: rel}
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rel)))
	if err != nil {
		entry.Err = fmt.Errorf("read %s: %w", rel, err)
		return entry, nil
	}
	entry.Data = data
	return entry, nil
}

func (d *dirReader) Close() error { return nil }

type singleFileReader struct {
	path string
	done bool
}

func openSingleFile(path string) (ArchiveReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &singleFileReader{path: path}, nil
}

func (s *singleFileReader) Count() int { return 1 }

func (s *singleFileReader) Next() (*Entry, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	entry := &Entry{Path: filepath.Base(s.path)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		entry.Err = fmt.Errorf("read %s: %w", s.path, err)
		return entry, nil
	}
	entry.Data = data
	return entry, nil
}

func (s *singleFileReader) Close() error { return nil }

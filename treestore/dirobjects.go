package treestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/forestrie/go-cmtree/keccak"
)

const tempFilePrefix = ".tmp-"

// DirObjects stores objects as files below Root. Writes go to a temporary
// file which is renamed into place, so readers never see a partial object.
// The etag is the keccak hash of the content. Conditions are enforced within
// the process only.
type DirObjects struct {
	Root string
	mu   sync.Mutex
}

func NewDirObjects(root string) *DirObjects {
	return &DirObjects{Root: root}
}

func (o *DirObjects) localPath(blobPath string) string {
	return filepath.Join(o.Root, filepath.FromSlash(blobPath))
}

func (o *DirObjects) Read(ctx context.Context, blobPath string) (Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.read(blobPath)
}

func (o *DirObjects) read(blobPath string) (Object, error) {
	fileName := o.localPath(blobPath)
	data, err := os.ReadFile(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, err
	}
	fi, err := os.Stat(fileName)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Path:         blobPath,
		Data:         data,
		ETag:         contentETag(data),
		LastModified: fi.ModTime().UTC(),
	}, nil
}

func (o *DirObjects) Write(ctx context.Context, blobPath string, data []byte, cond WriteCondition) (string, error) {
	if err := checkCondition(cond); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.read(blobPath)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if cond.Create && exists {
		return "", ErrExistsOC
	}
	if !cond.Create && (!exists || current.ETag != cond.ETag) {
		return "", ErrContentOC
	}

	fileName := o.localPath(blobPath)
	dir := filepath.Dir(fileName)
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return "", err
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, fileName); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return contentETag(data), nil
}

func (o *DirObjects) List(ctx context.Context, prefix string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Walk from the deepest directory the prefix names.
	dir := ""
	if i := strings.LastIndex(prefix, V1CMTPathSep); i >= 0 {
		dir = prefix[:i]
	}

	var paths []string
	err := filepath.WalkDir(o.localPath(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempFilePrefix) {
			return nil
		}
		rel, err := filepath.Rel(o.Root, p)
		if err != nil {
			return err
		}
		blobPath := filepath.ToSlash(rel)
		if strings.HasPrefix(blobPath, prefix) {
			paths = append(paths, blobPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func contentETag(data []byte) string {
	return keccak.Sum(data).Hex()
}

package treestore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemObjects keeps objects in memory. Each write gets a fresh random etag.
type MemObjects struct {
	mu      sync.Mutex
	objects map[string]Object
}

func NewMemObjects() *MemObjects {
	return &MemObjects{objects: make(map[string]Object)}
}

func (o *MemObjects) Read(ctx context.Context, blobPath string) (Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	obj, ok := o.objects[blobPath]
	if !ok {
		return Object{}, ErrNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

func (o *MemObjects) Write(ctx context.Context, blobPath string, data []byte, cond WriteCondition) (string, error) {
	if err := checkCondition(cond); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	current, exists := o.objects[blobPath]
	if cond.Create && exists {
		return "", ErrExistsOC
	}
	if !cond.Create && (!exists || current.ETag != cond.ETag) {
		return "", ErrContentOC
	}

	obj := Object{
		Path:         blobPath,
		Data:         append([]byte(nil), data...),
		ETag:         uuid.NewString(),
		LastModified: lastModifiedNow(),
	}
	o.objects[blobPath] = obj
	return obj.ETag, nil
}

func (o *MemObjects) List(ctx context.Context, prefix string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var paths []string
	for p := range o.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func lastModifiedNow() time.Time { return time.Now().UTC() }

package treestore

import (
	"context"
	"time"
)

// Object is a blob with the metadata needed to update it safely.
type Object struct {
	Path         string
	Data         []byte
	ETag         string
	LastModified time.Time
}

// WriteCondition guards a write against racing writers. Exactly one of
// Create or ETag applies.
type WriteCondition struct {
	// Create requires that nothing exists at the path yet.
	Create bool
	// ETag requires the current object to carry this etag.
	ETag string
}

// Objects is the blob surface the stores are built on. Paths are slash
// separated and relative.
type Objects interface {
	// Read returns ErrNotFound if there is nothing at blobPath.
	Read(ctx context.Context, blobPath string) (Object, error)
	// Write stores data if cond holds and returns the new etag. A failed
	// condition is ErrExistsOC or ErrContentOC.
	Write(ctx context.Context, blobPath string, data []byte, cond WriteCondition) (string, error)
	// List returns the paths with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

func checkCondition(cond WriteCondition) error {
	if !cond.Create && cond.ETag == "" {
		return ErrETagRequired
	}
	return nil
}

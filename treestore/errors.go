package treestore

import "errors"

var (
	ErrNotFound         = errors.New("object not found")
	ErrExistsOC         = errors.New("optimistic concurrency failure, subject already exists")
	ErrContentOC        = errors.New("optimistic concurrency failure, content to replace does not match expected content")
	ErrETagRequired     = errors.New("etag is required when updating an existing object")
	ErrNotSequencedPath = errors.New("path does not name a sequence numbered object")
	ErrNotTreePath      = errors.New("path is not below a tree prefix")
)

// IsConflict reports whether err is a lost optimistic concurrency race. The
// caller should reload and retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrExistsOC) || errors.Is(err, ErrContentOC)
}

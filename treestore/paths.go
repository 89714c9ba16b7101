package treestore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forestrie/go-cmtree/address"
)

const (
	V1CMTPrefix = "v1/cmt/trees"

	V1CMTPathSep               = "/"
	V1CMTExtSep                = "."
	V1CMTAccountBlobName       = "account.bin"
	V1CMTCheckpointsDir        = "checkpoints"
	V1CMTCheckpointBlobNameFmt = "%016d.sth"
	V1CMTCheckpointExt         = "sth" // Signed Tree Head
	V1CMTEventsDir             = "events"
	V1CMTEventBlobNameFmt      = "%016d.cbor"
	V1CMTEventExt              = "cbor"
)

// TreePrefix returns the path under which every blob for the tree is stored.
func TreePrefix(treeID address.Address) string {
	return fmt.Sprintf("%s/%s/", V1CMTPrefix, treeID)
}

// AccountBlobPath returns the path of the serialized tree account.
func AccountBlobPath(treeID address.Address) string {
	return TreePrefix(treeID) + V1CMTAccountBlobName
}

func CheckpointsPrefix(treeID address.Address) string {
	return TreePrefix(treeID) + V1CMTCheckpointsDir + V1CMTPathSep
}

// CheckpointBlobPath returns the path of the signed checkpoint for the tree
// at sequence number seq.
//
// Blob names list lexically, so the sequence number is zero padded to 16
// decimal digits.
func CheckpointBlobPath(treeID address.Address, seq uint64) string {
	return CheckpointsPrefix(treeID) + fmt.Sprintf(V1CMTCheckpointBlobNameFmt, seq)
}

func EventsPrefix(treeID address.Address) string {
	return TreePrefix(treeID) + V1CMTEventsDir + V1CMTPathSep
}

// EventBlobPath returns the path of the change log event recorded for the
// operation that produced sequence number seq.
func EventBlobPath(treeID address.Address, seq uint64) string {
	return EventsPrefix(treeID) + fmt.Sprintf(V1CMTEventBlobNameFmt, seq)
}

// TreeIDFromPath recovers the tree address from any path below TreePrefix.
func TreeIDFromPath(blobPath string) (address.Address, error) {
	rest, ok := strings.CutPrefix(blobPath, V1CMTPrefix+V1CMTPathSep)
	if !ok {
		return address.Address{}, fmt.Errorf("%w: %s", ErrNotTreePath, blobPath)
	}
	id, _, ok := strings.Cut(rest, V1CMTPathSep)
	if !ok {
		return address.Address{}, fmt.Errorf("%w: %s", ErrNotTreePath, blobPath)
	}
	treeID, err := address.Parse(id)
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: %s: %v", ErrNotTreePath, blobPath, err)
	}
	return treeID, nil
}

// CheckpointSeqFromPath recovers the sequence number from a checkpoint path.
func CheckpointSeqFromPath(blobPath string) (uint64, error) {
	return seqFromPath(blobPath, V1CMTCheckpointExt)
}

// EventSeqFromPath recovers the sequence number from an event path.
func EventSeqFromPath(blobPath string) (uint64, error) {
	return seqFromPath(blobPath, V1CMTEventExt)
}

func seqFromPath(blobPath string, wantExt string) (uint64, error) {
	name := blobPath[strings.LastIndex(blobPath, V1CMTPathSep)+1:]
	base, ext, ok := strings.Cut(name, V1CMTExtSep)
	if !ok || ext != wantExt {
		return 0, fmt.Errorf("%w: %s", ErrNotSequencedPath, blobPath)
	}
	seq, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotSequencedPath, blobPath, err)
	}
	return seq, nil
}

package treestore

import (
	"fmt"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

const (
	azblobBlobNotFound      = "BlobNotFound"
	azblobBlobAlreadyExists = "BlobAlreadyExists"
	azblobConditionNotMet   = "ConditionNotMet"
)

func AsStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	//nolint
	ierr, ok := err.(*azStorageBlob.InternalError)
	if ierr == nil || !ok {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

// wrapStorageError translates the azure sdk errors this package acts on to
// ErrNotFound, ErrExistsOC or ErrContentOC. Anything else, including nil, is
// returned as is.
func wrapStorageError(err error) error {
	if err == nil {
		return nil
	}
	serr, ok := AsStorageError(err)
	if !ok {
		return err
	}
	switch string(serr.ErrorCode) {
	case azblobBlobNotFound:
		return fmt.Errorf("%s: %w", err.Error(), ErrNotFound)
	case azblobBlobAlreadyExists:
		return fmt.Errorf("%s: %w", err.Error(), ErrExistsOC)
	case azblobConditionNotMet:
		return fmt.Errorf("%s: %w", err.Error(), ErrContentOC)
	}
	return err
}

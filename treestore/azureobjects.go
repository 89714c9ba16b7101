package treestore

import (
	"context"
	"io"

	"github.com/datatrails/go-datatrails-common/azblob"
)

// AzureObjects stores objects as azure blobs, using blob etags for the
// write conditions.
type AzureObjects struct {
	Store *azblob.Storer
}

func NewAzureObjects(store *azblob.Storer) *AzureObjects {
	return &AzureObjects{Store: store}
}

func (o *AzureObjects) Read(ctx context.Context, blobPath string) (Object, error) {
	rr, err := o.Store.Reader(ctx, blobPath)
	if err != nil {
		return Object{}, wrapStorageError(err)
	}
	defer rr.Reader.Close()

	obj := Object{Path: blobPath}
	obj.Data, err = io.ReadAll(rr.Reader)
	if err != nil {
		return Object{}, err
	}
	if rr.ETag != nil {
		obj.ETag = *rr.ETag
	}
	if rr.LastModified != nil {
		obj.LastModified = *rr.LastModified
	}
	return obj, nil
}

func (o *AzureObjects) Write(ctx context.Context, blobPath string, data []byte, cond WriteCondition) (string, error) {
	if err := checkCondition(cond); err != nil {
		return "", err
	}

	var opts []azblob.Option
	// CRITICAL: the etag guards against racy updates. The way to spell
	// 'fail without modifying if the blob exists' is to require that no blob
	// matches *any* etag.
	if cond.Create {
		opts = append(opts, azblob.WithEtagNoneMatch("*"))
	} else {
		opts = append(opts, azblob.WithEtagMatch(cond.ETag))
	}

	wr, err := o.Store.Put(ctx, blobPath, azblob.NewBytesReaderCloser(data), opts...)
	if err != nil {
		return "", wrapStorageError(err)
	}
	if wr == nil || wr.ETag == nil {
		return "", nil
	}
	return *wr.ETag, nil
}

func (o *AzureObjects) List(ctx context.Context, prefix string) ([]string, error) {
	var blobs []string
	var marker azblob.ListMarker
	for {
		r, err := o.Store.List(ctx, azblob.WithListPrefix(prefix), azblob.WithListMarker(marker))
		if err != nil {
			return nil, wrapStorageError(err)
		}
		for _, i := range r.Items {
			blobs = append(blobs, *i.Name)
		}
		if len(r.Items) == 0 || r.Marker == nil {
			break
		}
		marker = r.Marker
	}
	return blobs, nil
}

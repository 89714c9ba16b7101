package engine

import (
	"github.com/forestrie/go-cmtree/address"
)

type Options struct {
	// InferredProofs accepts proofs whose root is no longer (or never was) in
	// the change log buffer if replaying the whole buffer reconciles them.
	InferredProofs bool
	// TreeID labels emitted change log events.
	TreeID address.Address
}

type Option func(*Options)

func WithInferredProofs() Option {
	return func(o *Options) {
		o.InferredProofs = true
	}
}

func WithTreeID(treeID address.Address) Option {
	return func(o *Options) {
		o.TreeID = treeID
	}
}

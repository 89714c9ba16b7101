package sequencer

import (
	"time"

	"github.com/forestrie/go-cmtree/checkpoint"
)

type Options struct {
	// CacheSize bounds the decoded accounts kept in memory.
	CacheSize int
	// InferredProofs is passed to every engine the sequencer runs.
	InferredProofs bool
	Metrics        *Metrics
	Subscribers    []Subscriber

	// CheckpointEvery signs a checkpoint whenever the sequence number is a
	// multiple of it. Zero disables checkpoints.
	CheckpointEvery uint64
	RootSigner      checkpoint.RootSigner
	CoseSigner      checkpoint.IdentifiableCoseSigner

	Now func() time.Time
}

type Option func(*Options)

func WithCacheSize(size int) Option {
	return func(o *Options) {
		o.CacheSize = size
	}
}

func WithInferredProofs() Option {
	return func(o *Options) {
		o.InferredProofs = true
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

func WithSubscriber(sub Subscriber) Option {
	return func(o *Options) {
		o.Subscribers = append(o.Subscribers, sub)
	}
}

func WithCheckpoints(every uint64, rootSigner checkpoint.RootSigner, coseSigner checkpoint.IdentifiableCoseSigner) Option {
	return func(o *Options) {
		o.CheckpointEvery = every
		o.RootSigner = rootSigner
		o.CoseSigner = coseSigner
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

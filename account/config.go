package account

import (
	"fmt"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

// Config fixes the shape of a tree account. It can not be changed once the
// account exists.
type Config struct {
	MaxDepth      uint32 `yaml:"maxDepth"`
	MaxBufferSize uint32 `yaml:"maxBufferSize"`
	CanopyDepth   uint32 `yaml:"canopyDepth"`

	Authority    address.Address `yaml:"authority"`
	CreationSlot uint64          `yaml:"creationSlot"`
}

type Options struct {
	UncheckedShape bool
}

type Option func(*Options)

// WithUncheckedShape permits any depth and buffer size within the supported
// range, not just the pairs the remote program accepts. Intended for tests
// and local tooling.
func WithUncheckedShape() Option {
	return func(o *Options) {
		o.UncheckedShape = true
	}
}

type shape struct {
	depth  uint32
	buffer uint32
}

var validShapes = map[shape]struct{}{
	{3, 8}: {}, {5, 8}: {},
	{6, 16}: {}, {7, 16}: {}, {8, 16}: {}, {9, 16}: {},
	{10, 32}: {}, {11, 32}: {}, {12, 32}: {}, {13, 32}: {},
	{14, 64}: {}, {14, 256}: {}, {14, 1024}: {}, {14, 2048}: {},
	{15, 64}: {}, {16, 64}: {}, {17, 64}: {}, {18, 64}: {}, {19, 64}: {},
	{20, 64}: {}, {20, 256}: {}, {20, 1024}: {}, {20, 2048}: {},
	{24, 64}: {}, {24, 256}: {}, {24, 512}: {}, {24, 1024}: {}, {24, 2048}: {},
	{26, 512}: {}, {26, 1024}: {}, {26, 2048}: {},
	{30, 512}: {}, {30, 1024}: {}, {30, 2048}: {},
}

// IsValidShape reports whether the remote program accepts the depth and
// buffer size pair.
func IsValidShape(maxDepth, maxBufferSize uint32) bool {
	_, ok := validShapes[shape{maxDepth, maxBufferSize}]
	return ok
}

func ValidateConfig(cfg Config, opts ...Option) error {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.MaxDepth == 0 || cfg.MaxDepth > keccak.MaxSupportedDepth || cfg.MaxBufferSize == 0 {
		return fmt.Errorf("%w: depth %d, buffer %d", ErrUnsupportedShape, cfg.MaxDepth, cfg.MaxBufferSize)
	}
	if !o.UncheckedShape && !IsValidShape(cfg.MaxDepth, cfg.MaxBufferSize) {
		return fmt.Errorf("%w: depth %d, buffer %d", ErrUnsupportedShape, cfg.MaxDepth, cfg.MaxBufferSize)
	}
	if cfg.CanopyDepth > cfg.MaxDepth || cfg.CanopyDepth > MaxCanopyDepth {
		return fmt.Errorf("%w: %d for depth %d", ErrCanopyTooDeep, cfg.CanopyDepth, cfg.MaxDepth)
	}
	return nil
}

// Size is the account allocation for the config.
func (cfg Config) Size() uint64 {
	return AccountSize(cfg.MaxDepth, cfg.MaxBufferSize, cfg.CanopyDepth)
}

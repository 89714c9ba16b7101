// Package cmttesting provides shared test fixtures: a logger, deterministic
// leaf and asset generation, and trees with a fully materialized reference
// copy to check against.
package cmttesting

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"
)

// AzuriteEnv must be set for tests that need the blob store emulator.
const AzuriteEnv = "CMTREE_AZURITE"

type TestContext struct {
	Log    logger.Logger
	Storer *azblob.Storer
	T      *testing.T
}

type TestConfig struct {
	TestLabelPrefix string
	Container       string // can be "" defaults to TestLabelPrefix
}

func NewTestContext(t *testing.T, cfg TestConfig) TestContext {
	c := TestContext{
		T: t,
	}
	logger.New("INFO")
	c.Log = logger.Sugar.WithServiceName(cfg.TestLabelPrefix)
	return c
}

// NewAzuriteTestContext connects to the blob store emulator, skipping the
// test when AzuriteEnv is not set.
func NewAzuriteTestContext(t *testing.T, cfg TestConfig) TestContext {
	if os.Getenv(AzuriteEnv) == "" {
		t.Skipf("%s not set, skipping blob store emulator test", AzuriteEnv)
	}
	c := NewTestContext(t, cfg)

	container := cfg.Container
	if container == "" {
		container = strings.ReplaceAll(strings.ToLower(cfg.TestLabelPrefix), "_", "")
	}

	var err error
	c.Storer, err = azblob.NewDev(azblob.NewDevConfigFromEnv(), container)
	if err != nil {
		t.Fatalf("failed to connect to blob store emulator: %v", err)
	}
	client := c.Storer.GetServiceClient()
	// Note: we expect a 'already exists' error here and  ignore it.
	_, _ = client.CreateContainer(context.Background(), container, nil)

	return c
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

func (c *TestContext) GetStorer() *azblob.Storer {
	return c.Storer
}

// ClearPrefix deletes every blob under prefix now and again when the test
// ends, so reruns against a shared emulator start from nothing.
func (c *TestContext) ClearPrefix(prefix string) {
	c.T.Helper()
	c.deletePrefix(prefix)
	c.T.Cleanup(func() { c.deletePrefix(prefix) })
}

func (c *TestContext) deletePrefix(prefix string) {
	ctx := context.Background()
	var marker azblob.ListMarker
	for {
		r, err := c.Storer.List(ctx, azblob.WithListPrefix(prefix), azblob.WithListMarker(marker))
		require.NoError(c.T, err)
		for _, it := range r.Items {
			require.NoError(c.T, c.Storer.Delete(ctx, *it.Name))
		}
		if len(r.Items) == 0 || r.Marker == nil {
			return
		}
		marker = r.Marker
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
)

// Config is read from the --config yaml file. Command line flags and their
// environment variables override it.
type Config struct {
	Tree      account.Config  `yaml:"tree"`
	TreeID    address.Address `yaml:"treeID"`
	StoreDir  string          `yaml:"storeDir"`
	DASURL    string          `yaml:"dasURL"`
	LogLevel  string          `yaml:"logLevel"`
	Unchecked bool            `yaml:"unchecked"`
}

const (
	flagConfig    = "config"
	flagDepth     = "depth"
	flagBuffer    = "buffer"
	flagCanopy    = "canopy"
	flagTreeID    = "tree-id"
	flagStoreDir  = "store-dir"
	flagDASURL    = "das-url"
	flagLogLevel  = "log-level"
	flagUnchecked = "unchecked"

	defaultLogLevel = "INFO"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagConfig, Usage: "yaml config file", EnvVars: []string{"CMTREE_CONFIG"}},
		&cli.StringFlag{Name: flagLogLevel, Usage: "log level", EnvVars: []string{"CMTREE_LOG_LEVEL"}},
		&cli.StringFlag{Name: flagStoreDir, Usage: "directory holding stored trees", EnvVars: []string{"CMTREE_STORE_DIR"}},
		&cli.StringFlag{Name: flagTreeID, Usage: "base58 tree address", EnvVars: []string{"CMTREE_TREE_ID"}},
		&cli.StringFlag{Name: flagDASURL, Usage: "DAS indexer JSON-RPC endpoint", EnvVars: []string{"CMTREE_DAS_URL"}},
	}
}

func shapeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: flagDepth, Usage: "max tree depth"},
		&cli.UintFlag{Name: flagBuffer, Usage: "max change log buffer size"},
		&cli.UintFlag{Name: flagCanopy, Usage: "canopy depth"},
		&cli.BoolFlag{Name: flagUnchecked, Usage: "allow shapes the on chain program does not"},
	}
}

func loadConfigFile(path string) (Config, error) {
	cfg := Config{LogLevel: defaultLogLevel}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadConfig reads the config file and applies any flags that were set.
func loadConfig(cCtx *cli.Context) (Config, error) {
	cfg, err := loadConfigFile(cCtx.String(flagConfig))
	if err != nil {
		return cfg, err
	}

	if cCtx.IsSet(flagLogLevel) {
		cfg.LogLevel = cCtx.String(flagLogLevel)
	}
	if cCtx.IsSet(flagStoreDir) {
		cfg.StoreDir = cCtx.String(flagStoreDir)
	}
	if cCtx.IsSet(flagDASURL) {
		cfg.DASURL = cCtx.String(flagDASURL)
	}
	if cCtx.IsSet(flagTreeID) {
		if cfg.TreeID, err = address.Parse(cCtx.String(flagTreeID)); err != nil {
			return cfg, fmt.Errorf("--%s: %w", flagTreeID, err)
		}
	}
	if cCtx.IsSet(flagDepth) {
		cfg.Tree.MaxDepth = uint32(cCtx.Uint(flagDepth))
	}
	if cCtx.IsSet(flagBuffer) {
		cfg.Tree.MaxBufferSize = uint32(cCtx.Uint(flagBuffer))
	}
	if cCtx.IsSet(flagCanopy) {
		cfg.Tree.CanopyDepth = uint32(cCtx.Uint(flagCanopy))
	}
	if cCtx.IsSet(flagUnchecked) {
		cfg.Unchecked = cCtx.Bool(flagUnchecked)
	}
	return cfg, nil
}

func (cfg Config) accountOptions() []account.Option {
	if cfg.Unchecked {
		return []account.Option{account.WithUncheckedShape()}
	}
	return nil
}

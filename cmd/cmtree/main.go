// Command cmtree inspects, creates and updates concurrent merkle tree
// accounts, and computes and checks proofs for them.
package main

import (
	"fmt"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:     "cmtree",
		Usage:    "concurrent merkle tree tooling",
		Flags:    globalFlags(),
		Commands: commands(),
		Before: func(cCtx *cli.Context) error {
			cfg, err := loadConfig(cCtx)
			if err != nil {
				return err
			}
			logger.New(cfg.LogLevel)
			return nil
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	logger.OnExit()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/forestrie/go-cmtree/account"
	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/engine"
	"github.com/forestrie/go-cmtree/keccak"
	"github.com/forestrie/go-cmtree/merkletree"
	"github.com/forestrie/go-cmtree/proofsource"
	"github.com/forestrie/go-cmtree/sequencer"
	"github.com/forestrie/go-cmtree/treestore"
)

const (
	flagOut       = "out"
	flagFile      = "file"
	flagAuthority = "authority"
	flagLeaves    = "leaves"
	flagIndex     = "index"
	flagLeaf      = "leaf"
	flagRoot      = "root"
	flagProof     = "proof"
	flagAsset     = "asset"
)

var (
	errNoStore   = errors.New("--store-dir and --tree-id are required")
	errNoDepth   = errors.New("--depth is required")
	errNotProven = errors.New("proof does not verify")
	errNoDir     = errors.New("--store-dir is required")
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "size",
			Usage:  "print the account size for a tree shape",
			Flags:  shapeFlags(),
			Action: sizeCmd,
		},
		{
			Name:  "init",
			Usage: "create an empty tree, as an account file or in the store",
			Flags: append(shapeFlags(),
				&cli.StringFlag{Name: flagOut, Usage: "account file to write"},
				&cli.StringFlag{Name: flagAuthority, Usage: "base58 tree authority"},
			),
			Action: initCmd,
		},
		{
			Name:  "inspect",
			Usage: "decode a tree account and print its state",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagFile, Usage: "account file, otherwise the stored tree is read"},
			},
			Action: inspectCmd,
		},
		{
			Name:  "append",
			Usage: "append leaves to a stored tree",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagLeaves, Usage: "file of hex leaf hashes, one per line", Required: true},
			},
			Action: appendCmd,
		},
		{
			Name:  "root",
			Usage: "compute the root of a tree over a file of leaves",
			Flags: append(shapeFlags(),
				&cli.StringFlag{Name: flagLeaves, Usage: "file of hex leaf hashes, one per line", Required: true},
			),
			Action: rootCmd,
		},
		{
			Name:  "proof",
			Usage: "print the proof for one leaf of a tree over a file of leaves",
			Flags: append(shapeFlags(),
				&cli.StringFlag{Name: flagLeaves, Usage: "file of hex leaf hashes, one per line", Required: true},
				&cli.UintFlag{Name: flagIndex, Usage: "leaf index"},
			),
			Action: proofCmd,
		},
		{
			Name:  "verify",
			Usage: "check a leaf and proof reproduce a root",
			Flags: append(shapeFlags(),
				&cli.StringFlag{Name: flagLeaf, Usage: "hex leaf hash", Required: true},
				&cli.UintFlag{Name: flagIndex, Usage: "leaf index"},
				&cli.StringFlag{Name: flagRoot, Usage: "base58 or hex root", Required: true},
				&cli.StringFlag{Name: flagProof, Usage: "file of hex proof nodes, leaf level first", Required: true},
			),
			Action: verifyCmd,
		},
		{
			Name:  "fetch-proof",
			Usage: "fetch an asset proof from a DAS indexer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagAsset, Usage: "base58 asset id", Required: true},
				&cli.UintFlag{Name: flagDepth, Usage: "max tree depth, if the indexer truncates proofs"},
			},
			Action: fetchProofCmd,
		},
		{
			Name:   "tails",
			Usage:  "report the latest event and checkpoint of every stored tree",
			Action: tailsCmd,
		},
	}
}

// newLog assumes the app's Before hook has configured the logger.
func newLog() logger.Logger {
	return logger.Sugar.WithServiceName("cmtree")
}

func sizeCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if err := account.ValidateConfig(cfg.Tree, cfg.accountOptions()...); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cCtx.App.Writer, cfg.Tree.Size())
	return err
}

func initCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if cCtx.IsSet(flagAuthority) {
		if cfg.Tree.Authority, err = address.Parse(cCtx.String(flagAuthority)); err != nil {
			return fmt.Errorf("--%s: %w", flagAuthority, err)
		}
	}
	log := newLog()

	if out := cCtx.String(flagOut); out != "" {
		a, err := account.New(cfg.Tree, cfg.accountOptions()...)
		if err != nil {
			return err
		}
		if _, err := engine.New(log, engine.WithTreeID(cfg.TreeID)).Initialize(a); err != nil {
			return err
		}
		data, err := a.MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cCtx.App.Writer, "%s %d bytes root %s\n", out, len(data), a.CurrentRoot())
		return err
	}

	seq, err := newSequencer(cfg, log)
	if err != nil {
		return err
	}
	out, err := seq.CreateTree(cCtx.Context, cfg.TreeID, cfg.Tree, cfg.accountOptions()...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cCtx.App.Writer, "%s root %s\n", cfg.TreeID, out.Event.Root())
	return err
}

func inspectCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	var a *account.Account
	if file := cCtx.String(flagFile); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if a, err = account.Decode(data); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	} else {
		seq, err := newSequencer(cfg, newLog())
		if err != nil {
			return err
		}
		if a, err = seq.Account(cCtx.Context, cfg.TreeID); err != nil {
			return err
		}
	}
	return writeYAML(cCtx, summarize(a))
}

func appendCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	leaves, err := readHashes(cCtx.String(flagLeaves))
	if err != nil {
		return err
	}
	seq, err := newSequencer(cfg, newLog())
	if err != nil {
		return err
	}

	var out engine.Outcome
	for i, leaf := range leaves {
		if out, err = seq.Append(cCtx.Context, cfg.TreeID, leaf); err != nil {
			return fmt.Errorf("leaf %d: %w", i, err)
		}
	}
	_, err = fmt.Fprintf(cCtx.App.Writer, "appended %d seq %d root %s\n", len(leaves), out.Event.Seq, out.Event.Root())
	return err
}

func rootCmd(cCtx *cli.Context) error {
	cfg, leaves, err := leavesAndConfig(cCtx)
	if err != nil {
		return err
	}
	root, err := merkletree.Root(leaves, cfg.Tree.MaxDepth)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cCtx.App.Writer, "%s\n%s\n", root, root.Hex())
	return err
}

type proofSummary struct {
	Root  keccak.Hash   `yaml:"root"`
	Leaf  keccak.Hash   `yaml:"leaf"`
	Index uint32        `yaml:"index"`
	Proof []keccak.Hash `yaml:"proof"`
}

func proofCmd(cCtx *cli.Context) error {
	cfg, leaves, err := leavesAndConfig(cCtx)
	if err != nil {
		return err
	}
	tree, err := merkletree.Build(leaves, cfg.Tree.MaxDepth)
	if err != nil {
		return err
	}
	index := uint32(cCtx.Uint(flagIndex))
	proof, err := tree.TruncatedProof(index, cfg.Tree.CanopyDepth)
	if err != nil {
		return err
	}
	leaf, err := tree.Leaf(index)
	if err != nil {
		return err
	}
	return writeYAML(cCtx, proofSummary{Root: tree.Root(), Leaf: leaf, Index: index, Proof: proof})
}

func verifyCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	leaf, err := keccak.FromHex(cCtx.String(flagLeaf))
	if err != nil {
		return fmt.Errorf("--%s: %w", flagLeaf, err)
	}
	root, err := parseHash(cCtx.String(flagRoot))
	if err != nil {
		return fmt.Errorf("--%s: %w", flagRoot, err)
	}
	proof, err := readHashes(cCtx.String(flagProof))
	if err != nil {
		return err
	}
	depth := cfg.Tree.MaxDepth
	if depth == 0 {
		depth = uint32(len(proof))
	}

	ok, err := merkletree.VerifyDepth(depth, leaf, uint32(cCtx.Uint(flagIndex)), proof, root)
	if err != nil {
		return err
	}
	if !ok {
		return errNotProven
	}
	_, err = fmt.Fprintln(cCtx.App.Writer, "ok")
	return err
}

func fetchProofCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if cfg.DASURL == "" {
		return fmt.Errorf("--%s is required", flagDASURL)
	}
	assetID, err := address.Parse(cCtx.String(flagAsset))
	if err != nil {
		return fmt.Errorf("--%s: %w", flagAsset, err)
	}

	client := proofsource.NewDASClient(newLog(), cfg.DASURL, proofsource.WithMaxDepth(cfg.Tree.MaxDepth))
	p, err := client.GetAssetProof(cCtx.Context, assetID)
	if err != nil {
		return err
	}
	return writeYAML(cCtx, struct {
		TreeID       address.Address `yaml:"treeID"`
		proofSummary `yaml:",inline"`
	}{p.TreeID, proofSummary{Root: p.Root, Leaf: p.Leaf, Index: p.LeafIndex, Proof: p.Proof}})
}

func tailsCmd(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if cfg.StoreDir == "" {
		return errNoDir
	}
	c, err := treestore.CollateTails(cCtx.Context, treestore.NewDirObjects(cfg.StoreDir))
	if err != nil {
		return err
	}
	activity := c.Activity()
	newLog().Debugf("collated %d trees", len(activity))
	return writeYAML(cCtx, activity)
}

func newSequencer(cfg Config, log logger.Logger) (*sequencer.Sequencer, error) {
	if cfg.StoreDir == "" || cfg.TreeID.IsZero() {
		return nil, errNoStore
	}
	return sequencer.New(log, treestore.NewDirStore(log, cfg.StoreDir))
}

func leavesAndConfig(cCtx *cli.Context) (Config, []keccak.Hash, error) {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.Tree.MaxDepth == 0 {
		return cfg, nil, errNoDepth
	}
	leaves, err := readHashes(cCtx.String(flagLeaves))
	return cfg, leaves, err
}

// readHashes reads one hex hash per line. Blank lines and lines starting
// with # are skipped.
func readHashes(path string) ([]keccak.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hashes []keccak.Hash
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		h, err := keccak.FromHex(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, scanner.Err()
}

// parseHash accepts hex (64 digits, optional 0x) or base58.
func parseHash(s string) (keccak.Hash, error) {
	if h, err := keccak.FromHex(s); err == nil {
		return h, nil
	}
	return keccak.FromBase58(s)
}

func writeYAML(cCtx *cli.Context, v any) error {
	enc := yaml.NewEncoder(cCtx.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

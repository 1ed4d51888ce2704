// Command triectl is a thin CLI over the store package (SPEC_FULL.md
// §4.L): put/get/remove a key, commit or revert an identifier, and
// fetch or verify a Merkle proof.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/vechain/bpmt/bhash"
	"github.com/vechain/bpmt/commit"
	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/lvldb"
	"github.com/vechain/bpmt/metrics"
	"github.com/vechain/bpmt/store"
	"github.com/vechain/bpmt/trie"
	cli "gopkg.in/urfave/cli.v1"
)

var log = log15.New()

func main() {
	app := cli.App{
		Name:  "triectl",
		Usage: "inspect and mutate a bpmt trie store",
		Flags: []cli.Flag{
			dataDirFlag,
			identifierFlag,
			verbosityFlag,
			metricsAddrFlag,
		},
		Commands: []cli.Command{
			{Name: "put", Usage: "insert or overwrite key=value (both hex)", Action: putAction},
			{Name: "get", Usage: "read a key (hex)", Action: getAction},
			{Name: "remove", Usage: "delete a key (hex)", Action: removeAction},
			{Name: "root", Usage: "print the identifier's current root hash", Action: rootAction},
			{Name: "proof", Usage: "print a Merkle proof for a key (hex)", Action: proofAction},
			{Name: "verify", Usage: "verify a hex-encoded proof against a root and key/value", Action: verifyAction},
			{
				Name:  "commit",
				Usage: "commit the identifier's pending changes under a commit id",
				Flags: []cli.Flag{commitIDFlag},
				Action: commitAction,
			},
			{
				Name:  "revert",
				Usage: "revert the identifier to a previously committed id",
				Flags: []cli.Flag{commitIDFlag},
				Action: revertAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(ctx *cli.Context) {
	lvl := ctx.GlobalInt(verbosityFlag.Name)
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(lvl), log15.StderrHandler))
}

func openStore(ctx *cli.Context) (*store.Store, error) {
	initLogger(ctx)
	if addr := ctx.GlobalString(metricsAddrFlag.Name); addr != "" {
		metrics.InitializePrometheusMetrics()
		go func() {
			log.Info("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, metrics.HTTPHandler()); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	dir := ctx.GlobalString(dataDirFlag.Name)
	if dir == "" {
		return store.NewMem(store.Config{}), nil
	}
	return store.Open(dir, lvldb.Options{}, store.Config{})
}

func identifier(ctx *cli.Context) []byte {
	return []byte(ctx.GlobalString(identifierFlag.Name))
}

func putAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: triectl put <key-hex> <value-hex>")
	}
	key, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "decode key")
	}
	valBytes, err := hex.DecodeString(ctx.Args().Get(1))
	if err != nil {
		return errors.Wrap(err, "decode value")
	}
	value, err := felt.FromBytes(valBytes)
	if err != nil {
		return errors.Wrap(err, "decode value as felt")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tr, err := s.NewTrie(identifier(ctx))
	if err != nil {
		return err
	}
	if err := tr.Insert(key, value); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func getAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: triectl get <key-hex>")
	}
	key, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "decode key")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tr, err := s.NewTrie(identifier(ctx))
	if err != nil {
		return err
	}
	v, ok, err := tr.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("<absent>")
		return nil
	}
	b := v.Bytes()
	fmt.Println(hex.EncodeToString(b[:]))
	return nil
}

func removeAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: triectl remove <key-hex>")
	}
	key, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "decode key")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tr, err := s.NewTrie(identifier(ctx))
	if err != nil {
		return err
	}
	if err := tr.Remove(key); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func rootAction(ctx *cli.Context) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tr, err := s.NewTrie(identifier(ctx))
	if err != nil {
		return err
	}
	root, err := tr.RootHash()
	if err != nil {
		return err
	}
	b := root.Bytes()
	fmt.Println(hex.EncodeToString(b[:]))
	return nil
}

func proofAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("usage: triectl proof <key-hex>")
	}
	key, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "decode key")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tr, err := s.NewTrie(identifier(ctx))
	if err != nil {
		return err
	}
	proof, err := tr.GetProof(key)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(trie.EncodeProof(proof)))
	return nil
}

func verifyAction(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return errors.New("usage: triectl verify <root-hex> <key-hex> <value-hex-or-empty> <proof-hex>")
	}
	rootBytes, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "decode root")
	}
	root, err := felt.FromBytes(rootBytes)
	if err != nil {
		return errors.Wrap(err, "root as felt")
	}
	key, err := hex.DecodeString(ctx.Args().Get(1))
	if err != nil {
		return errors.Wrap(err, "decode key")
	}

	valueHex := ctx.Args().Get(2)
	present := valueHex != ""
	var value felt.Felt
	if present {
		valBytes, err := hex.DecodeString(valueHex)
		if err != nil {
			return errors.Wrap(err, "decode value")
		}
		value, err = felt.FromBytes(valBytes)
		if err != nil {
			return errors.Wrap(err, "value as felt")
		}
	}

	proofBytes, err := hex.DecodeString(ctx.Args().Get(3))
	if err != nil {
		return errors.Wrap(err, "decode proof")
	}
	proof, err := trie.DecodeProof(proofBytes)
	if err != nil {
		return errors.Wrap(err, "decode proof")
	}

	verdict := trie.VerifyProof(bhash.Keccak{}, root, key, value, present, proof)
	switch verdict {
	case trie.Member:
		fmt.Println("member")
	case trie.NonMember:
		fmt.Println("non-member")
	default:
		fmt.Println("invalid")
	}
	return nil
}

func commitAction(ctx *cli.Context) error {
	id, err := parseCommitID(ctx)
	if err != nil {
		return err
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.NewTrie(identifier(ctx)); err != nil {
		return err
	}
	roots, err := s.Commit(id, identifier(ctx))
	if err != nil {
		return err
	}
	for ident, root := range roots {
		b := root.Bytes()
		fmt.Printf("%s %s\n", ident, hex.EncodeToString(b[:]))
	}
	return nil
}

func revertAction(ctx *cli.Context) error {
	id, err := parseCommitID(ctx)
	if err != nil {
		return err
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RevertTo(identifier(ctx), id); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func parseCommitID(ctx *cli.Context) (commit.ID, error) {
	v := ctx.Uint64(commitIDFlag.Name)
	if v == 0 {
		return nil, errors.New("--commit-id is required and must be nonzero")
	}
	return commit.Uint64ID(v), nil
}

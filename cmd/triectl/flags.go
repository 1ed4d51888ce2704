package main

import cli "gopkg.in/urfave/cli.v1"

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for the trie store; empty uses an in-memory store",
	}
	identifierFlag = cli.StringFlag{
		Name:  "identifier",
		Value: "default",
		Usage: "the identifier partitioning the store's tries",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-5)",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "if set, serve Prometheus metrics on this address",
	}
	commitIDFlag = cli.Uint64Flag{
		Name:  "commit-id",
		Usage: "the commit id to commit or revert to",
	}
)

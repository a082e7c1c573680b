// Command node runs a single p2pchain node: it mines (optionally), serves
// the peer protocol, and keeps its chain state in sync with its peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/p2pchain/node/internal/node"
	"github.com/p2pchain/node/internal/node/p2p"
	"github.com/p2pchain/node/internal/node/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()

	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a NODE/DB/API/PARENT config file")
	host := fs.String("host", defaults.Node.Host, "listen host")
	port := fs.Int("port", defaults.Node.Port, "listen port")
	datadir := fs.String("datadir", "node.db", "path to the node's bbolt database file")
	mine := fs.Bool("mine", defaults.Node.Mine, "mine new blocks")
	walletWIF := fs.String("wallet", "", "WIF-style mining reward key")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := defaults
	if *configPath != "" {
		loaded, err := node.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "config load failed: %v\n", err)
			return 2
		}
		cfg = loaded
	}
	if explicit["host"] {
		cfg.Node.Host = *host
	}
	if explicit["port"] {
		cfg.Node.Port = *port
	}
	if explicit["mine"] {
		cfg.Node.Mine = *mine
	}
	if explicit["wallet"] {
		cfg.Node.WalletWIF = *walletWIF
	}
	if err := node.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	db, err := store.Open(filepath.Clean(*datadir))
	if err != nil {
		fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer db.Close()

	var minerH160 [20]byte
	if cfg.Node.Mine {
		_, h160, err := node.LoadMiningKey(cfg.Node.WalletWIF)
		if err != nil {
			fmt.Fprintf(stderr, "wallet load failed: %v\n", err)
			return 2
		}
		minerH160 = h160
	}

	mempool := node.NewMempool(nil)
	bc := p2p.NewPeerBroadcaster(db)
	chain := node.NewChainManager(db, mempool, bc, minerH160)

	if cfg.Parent.Host != "" {
		addr := net.JoinHostPort(cfg.Parent.Host, fmt.Sprint(cfg.Parent.Port))
		if err := db.AddNode(node.NodeRecord{Address: addr}); err != nil {
			slog.Warn("could not seed parent node", "addr", addr, "err", err)
		}
	}

	bootstrap := p2p.NewBootstrap(db, chain)
	bootstrap.Run()

	listenAddr := net.JoinHostPort(cfg.Node.Host, fmt.Sprint(cfg.Node.Port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		fmt.Fprintf(stderr, "listen failed: %v\n", err)
		return 2
	}
	defer ln.Close()

	server := p2p.NewServer(chain)
	go func() {
		if err := server.Serve(ln); err != nil {
			slog.Info("p2p server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Node.Mine {
		go runMiningLoop(ctx, chain)
	}

	fmt.Fprintf(stdout, "node listening on %s\n", listenAddr)
	<-ctx.Done()
	fmt.Fprintln(stdout, "node shutting down")
	return 0
}

// runMiningLoop repeatedly calls MineNextBlock until ctx is cancelled. The
// mining inner loop itself polls newBlockSignal between hash attempts (spec
// §5); each attempt gets a fresh signal merging ctx's shutdown with the
// chain's own arrival notifications, so either a shutdown request or a
// peer's block landing first interrupts mining within one hash attempt.
func runMiningLoop(ctx context.Context, chain *node.ChainManager) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		result, err := chain.MineNextBlock(mergeSignals(ctx.Done(), chain.ArrivalNotify()))
		if err != nil {
			slog.Error("mining attempt failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if result.Won {
			slog.Info("mined block", "height", result.Block.Height, "hash", result.Block.Header.HashHex())
		}
	}
}

// mergeSignals fans two one-shot signals into one, closing the returned
// channel the instant either source fires.
func mergeSignals(a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		select {
		case <-a:
		case <-b:
		}
		close(out)
	}()
	return out
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

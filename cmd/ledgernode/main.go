// Command ledgernode runs a single chain node: the ledger state machine,
// its proof-of-work miner, and the gossip overlay that keeps it in sync
// with peers. It is a composition root, not the HTTP control API — that is
// a separate, out-of-scope collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meridian-chain/ledgernode/config"
	"github.com/meridian-chain/ledgernode/core"
	"github.com/meridian-chain/ledgernode/p2p"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML node configuration file")
	minerFlag := flag.Bool("mine", true, "continuously mine blocks from the mempool")
	flag.Parse()

	logger := log.New()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("load configuration")
		}
		cfg = loaded
	}
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	node, err := core.NewNode(core.NodeConfig{
		GenesisSupply:      cfg.Ledger.GenesisSupply,
		Fee:                cfg.Ledger.Fee,
		TargetBlockSeconds: cfg.Ledger.TargetBlockSeconds,
		AdjustmentInterval: cfg.Ledger.AdjustmentInterval,
		Logger:             logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("create node")
	}

	overlay := p2p.NewServer(p2p.Config{
		ListenAddress:     cfg.Node.ListenAddress,
		Port:              cfg.Node.Port,
		BootstrapPeers:    cfg.Overlay.BootstrapPeers,
		DiscoveryInterval: cfg.Overlay.DiscoveryInterval,
		ConnectionTimeout: cfg.Overlay.ConnectionTimeout,
		Logger:            logger,
	}, node)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overlay.Start(ctx)
	defer overlay.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", overlay)
	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Node.ListenAddress, cfg.Node.Port), Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("overlay listener stopped")
		}
	}()

	logger.WithFields(log.Fields{
		"genesis_address": node.GenesisWallet().Address,
		"listen":          httpServer.Addr,
	}).Info("ledgernode started")

	if *minerFlag {
		go mine(ctx, node, overlay, logger)
	}
	go resolveConflicts(ctx, node, overlay, logger)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// resolveConflicts periodically asks the overlay for peer chains and
// adopts the longest valid one, the background half of the longest-chain
// consensus rule (mining and block gossip apply the other half inline).
func resolveConflicts(ctx context.Context, node *core.Node, overlay *p2p.Server, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			adopted, err := node.ResolveConflicts(pollCtx, overlay)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("resolve conflicts")
				continue
			}
			if adopted {
				logger.Info("adopted a longer chain from a peer")
			}
		}
	}
}

// mine repeatedly mines whatever is in the mempool (plus the coinbase
// reward) and broadcasts each block to the overlay. It backs off for a
// second only after a failed attempt; with an empty mempool it keeps mining
// coinbase-only blocks back to back.
func mine(ctx context.Context, node *core.Node, overlay *p2p.Server, logger *log.Logger) {
	minerAddress := node.GenesisWallet().Address
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := node.Mine(ctx, minerAddress)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("mining attempt failed")
			time.Sleep(time.Second)
			continue
		}
		if err := overlay.BroadcastBlock(block); err != nil {
			logger.WithError(err).Warn("broadcast mined block")
		}
	}
}


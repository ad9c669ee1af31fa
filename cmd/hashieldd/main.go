// Package main provides the hashieldd daemon - a privacy wallet
// backend with session key rotation and hash-lock escrow settlement.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/hashield/internal/bridge"
	"github.com/madschristensen99/hashield/internal/config"
	"github.com/madschristensen99/hashield/internal/escrow"
	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/internal/funding"
	"github.com/madschristensen99/hashield/internal/keyring"
	"github.com/madschristensen99/hashield/internal/rpc"
	"github.com/madschristensen99/hashield/internal/storage"
	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "", "Data directory, overrides config")
		configFile  = flag.String("config", "~/.hashield/config.yaml", "Config file path")
		apiAddr     = flag.String("api", "", "JSON-RPC API address, overrides config")
		chainRPC    = flag.String("chain-rpc", "", "EVM chain RPC endpoint, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("hashieldd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Load config and apply CLI overrides
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *apiAddr != "" {
		cfg.RPC.Listen = *apiAddr
	}
	if *chainRPC != "" {
		cfg.Chain.RPCURL = *chainRPC
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Update logging with config level
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ExpandPath(*configFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	dataPath := config.ExpandPath(cfg.Storage.DataDir)
	store, err := storage.New(&storage.Config{DataDir: dataPath})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", dataPath)

	// Connect to the chain
	client, err := evm.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal("Failed to connect to chain", "rpc", cfg.Chain.RPCURL, "error", err)
	}
	chainID := cfg.Chain.ChainID
	if onChain := client.ChainID(); onChain != nil {
		if chainID != 0 && onChain.Uint64() != chainID {
			log.Fatal("Chain ID mismatch", "config", chainID, "chain", onChain.Uint64())
		}
		chainID = onChain.Uint64()
	}
	log.Info("Chain connected", "rpc", cfg.Chain.RPCURL, "chainId", chainID)

	// Initialize keyring; the session counter lives in storage
	keys := keyring.New(store, log)
	unlockFromSeedFile(cfg, keys, log)

	// Liquidity pool and funding pipeline
	var pool *funding.PoolClient
	funders := []funding.Funder{}
	if cfg.Pool.Address != "" {
		pool, err = funding.NewPoolClient(client, common.HexToAddress(cfg.Pool.Address), keys, log)
		if err != nil {
			log.Fatal("Failed to initialize pool client", "error", err)
		}
		funders = append(funders, funding.NewPoolFunder(pool, keys, log))
		log.Info("Liquidity pool configured", "address", cfg.Pool.Address)
	} else {
		log.Warn("No liquidity pool configured, falling back to direct transfers only")
	}
	funders = append(funders, funding.NewDirectFunder(client, keys, log))

	margin, ok := new(big.Int).SetString(cfg.Funding.SafetyMarginWei, 10)
	if !ok {
		log.Fatal("Invalid funding safety margin", "value", cfg.Funding.SafetyMarginWei)
	}
	coordinator := funding.NewCoordinator(client, funders, &funding.Config{
		Margin:       margin,
		PollInterval: time.Duration(cfg.Funding.PollIntervalSec) * time.Second,
		MaxAttempts:  cfg.Funding.MaxAttempts,
	}, log)

	// Transaction pipeline
	tracker := txqueue.NewTracker(0, 0)
	sub := &txqueue.Substitutor{
		Placeholder: common.HexToAddress(cfg.Privacy.PlaceholderAddress),
		Enabled:     cfg.Privacy.AddressSubstitution,
	}
	executor := txqueue.NewTxExecutor(client, keys, coordinator, sub, tracker, log)

	// Bridge to the swap daemon
	var bridgeClient *bridge.Client
	var orderService *bridge.OrderService
	if cfg.Bridge.RPCURL != "" {
		bridgeClient = bridge.NewClient(&bridge.Config{
			RPCURL:   cfg.Bridge.RPCURL,
			Username: cfg.Bridge.Username,
			Password: cfg.Bridge.Password,
		}, log)
		orderService = bridge.NewOrderService(store, bridgeClient, &bridge.OrderConfig{
			RelayerEndpoint:     cfg.Bridge.RelayerEndpoint,
			RelayerFee:          cfg.Escrow.RelayerFeeWei,
			DefaultExchangeRate: cfg.Bridge.DefaultExchangeRate,
		}, log)
		log.Info("Swap daemon bridge configured", "rpc", cfg.Bridge.RPCURL)
	} else {
		log.Warn("No swap daemon configured, liquidity orders disabled")
	}

	var placer txqueue.OrderPlacer
	if orderService != nil {
		placer = orderService
	}
	queue := txqueue.New(executor, placer, log)

	// Escrow settlement
	var escrowClient *escrow.Client
	if cfg.Escrow.EscrowAddress != "" {
		escrowClient, err = escrow.NewClient(client, &escrow.Config{
			ResolverAddress: common.HexToAddress(cfg.Escrow.ResolverAddress),
			EscrowAddress:   common.HexToAddress(cfg.Escrow.EscrowAddress),
			RelayerKey:      loadRelayerKey(log),
			DomainName:      cfg.Escrow.DomainName,
			DomainVersion:   cfg.Escrow.DomainVersion,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize escrow client", "error", err)
		}
		log.Info("Escrow configured",
			"escrow", cfg.Escrow.EscrowAddress,
			"resolver", cfg.Escrow.ResolverAddress)
	} else {
		log.Warn("No escrow contract configured, settlement disabled")
	}

	// Start RPC server
	rpcServer := rpc.NewServer(&rpc.Deps{
		Store:        store,
		Keys:         keys,
		Queue:        queue,
		Tracker:      tracker,
		Pool:         pool,
		Escrow:       escrowClient,
		Bridge:       bridgeClient,
		ChainID:      chainID,
		SeedFile:     config.ExpandPath(cfg.Keyring.SeedFile),
		Placeholder:  common.HexToAddress(cfg.Privacy.PlaceholderAddress),
		Substitution: cfg.Privacy.AddressSubstitution,
	})
	if err := rpcServer.Start(cfg.RPC.Listen); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, chainID)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}
	keys.Clear()

	log.Info("Goodbye!")
}

// unlockFromSeedFile loads the encrypted master seed at startup when
// HASHIELD_SEED_PASSWORD is set. Otherwise the wallet stays locked
// until wallet_import is called over RPC.
func unlockFromSeedFile(cfg *config.Config, keys *keyring.Keyring, log *logging.Logger) {
	password := os.Getenv("HASHIELD_SEED_PASSWORD")
	if password == "" {
		return
	}

	seedPath := config.ExpandPath(cfg.Keyring.SeedFile)
	encrypted, err := keyring.LoadEncryptedSeed(seedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to load seed file", "path", seedPath, "error", err)
		}
		return
	}

	mnemonic, err := keyring.DecryptMnemonic(encrypted, password)
	if err != nil {
		log.Warn("Failed to decrypt seed file", "path", seedPath, "error", err)
		return
	}
	defer keyring.SecureClear([]byte(mnemonic))

	if err := keys.ImportMnemonic(mnemonic, ""); err != nil {
		log.Warn("Failed to import decrypted mnemonic", "error", err)
		return
	}

	log.Info("Wallet unlocked from seed file", "path", seedPath)
}

// loadRelayerKey reads the relayer's private key from the environment.
// The relayer key never touches disk or config files.
func loadRelayerKey(log *logging.Logger) *ecdsa.PrivateKey {
	raw := os.Getenv("HASHIELD_RELAYER_KEY")
	if raw == "" {
		log.Warn("HASHIELD_RELAYER_KEY not set, relayer settlement disabled")
		return nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		log.Fatal("Invalid relayer key", "error", err)
	}
	return key
}

func printBanner(log *logging.Logger, cfg *config.Config, chainID uint64) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  hashield daemon")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.RPC.Listen)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.Listen)
	log.Info("")
	log.Infof("  Chain: %d | %s", chainID, cfg.Chain.RPCURL)
	log.Infof("  Substitution: %v", cfg.Privacy.AddressSubstitution)
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

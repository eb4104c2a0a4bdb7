package main

import (
	"context"
	"fmt"
	"math/big"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/aptos"
	"github.com/socialwire/claimbridge/internal/chainadapter/evm"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/chainadapter/xrp"
	"github.com/socialwire/claimbridge/internal/chainclients/aptosclient"
	"github.com/socialwire/claimbridge/internal/chainclients/evmclient"
	"github.com/socialwire/claimbridge/internal/chainclients/xrpclient"
	"github.com/socialwire/claimbridge/internal/channelregistry"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimmanager"
	"github.com/socialwire/claimbridge/internal/claimstore"
	"github.com/socialwire/claimbridge/internal/config"
	"github.com/socialwire/claimbridge/internal/eventhandler"
	"github.com/socialwire/claimbridge/internal/httpapi"
	"github.com/socialwire/claimbridge/internal/logging"
	"github.com/socialwire/claimbridge/internal/metrics"
	"github.com/socialwire/claimbridge/internal/peerconfig"
	"github.com/socialwire/claimbridge/internal/settlement"
	"github.com/socialwire/claimbridge/internal/wirebridge"
)

// run wires every component together and blocks until the process
// receives SIGINT/SIGTERM or a listener fails, then shuts the management
// surface down gracefully. The wire listener is not shut down here; it
// stops when the process exits.
func run(ctx context.Context) error {
	cfg, err := config.Load(viper.GetViper(), dotenvPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, strings.EqualFold(cfg.LogLevel, "debug"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	log.Info("claimrelay starting", zap.Any("config", cfg.Redacted()))

	peers, err := peerconfig.Load(peersPath)
	if err != nil {
		return fmt.Errorf("load peer config: %w", err)
	}

	channels := channelregistry.New()
	wallets := peerconfig.NewResolver(peers, channels)

	store, err := claimstore.Open(filepath.Join(".", "data", "claims"), log)
	if err != nil {
		return fmt.Errorf("open claim store: %w", err)
	}
	defer store.Close()

	ss, err := signstate.Open(filepath.Join(".", "data", "signstate"))
	if err != nil {
		return fmt.Errorf("open signstate: %w", err)
	}
	defer ss.Close()

	adapters := chainadapter.NewRegistry()
	if err := registerAdapters(ctx, cfg, ss, adapters, log); err != nil {
		return fmt.Errorf("register chain adapters: %w", err)
	}

	manager := claimmanager.New(channels, store, adapters, wallets, log)

	threshold, err := decimal.NewFromString(cfg.SettlementThreshold)
	if err != nil {
		return fmt.Errorf("parse SETTLEMENT_THRESHOLD: %w", err)
	}
	trigger := settlement.New(threshold, store, channels, adapters, log)

	bridge := wirebridge.New(manager, channels, trigger, eventhandler.NewEcho(log), nil, nil, "claimrelay.local", log)

	m := metrics.New(nil)
	reconfigurer := &liveReconfigurer{cfg: cfg, signstate: ss, adapters: adapters, log: log}
	httpSrv := httpapi.New(store, trigger, adapters, cfg, reconfigurer, m, log)

	wireMux := newWireMux(bridge)
	wireAddr := cfg.FirstHopURL
	if wireAddr == "" {
		wireAddr = ":9090"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	go func() {
		log.Info("wire bridge listening", zap.String("addr", wireAddr))
		errc <- listenAndServeMux(wireAddr, wireMux)
	}()
	go func() {
		log.Info("management surface listening", zap.String("addr", cfg.HTTPListenAddr))
		if err := httpSrv.Run(cfg.HTTPListenAddr); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.Error("listener failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// registerAdapters builds and registers every chain adapter this process
// has credentials configured for; a chain with an empty private key is
// left unregistered rather than failing startup, since an operator may
// only run a subset of chains.
func registerAdapters(ctx context.Context, cfg *config.Config, ss *signstate.Store, reg *chainadapter.Registry, log *zap.Logger) error {
	if cfg.EVMPrivateKey != "" {
		domain := claimcodec.EIP712Domain{
			Name:              cfg.EVMDomainName,
			Version:           cfg.EVMDomainVersion,
			ChainID:           big.NewInt(cfg.EVMChainID),
			VerifyingContract: cfg.EVMVerifyingContract,
		}
		adapter, err := buildEVMAdapter(ctx, cfg, domain, ss, log)
		if err != nil {
			return err
		}
		reg.Register(adapter)
	}

	if cfg.XRPPrivateKey != "" {
		adapter, err := buildXRPAdapter(cfg, ss, log)
		if err != nil {
			return err
		}
		reg.Register(adapter)
	}

	if cfg.AptosPrivateKey != "" {
		adapter, err := buildAptosAdapter(cfg, ss, log)
		if err != nil {
			return err
		}
		reg.Register(adapter)
	}

	return nil
}

func buildEVMAdapter(ctx context.Context, cfg *config.Config, domain claimcodec.EIP712Domain, ss *signstate.Store, log *zap.Logger) (*evm.Adapter, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.EVMPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse EVM_PRIVATE_KEY: %w", err)
	}
	chain, err := evmclient.New(ctx, cfg.EVMNodeURL, domain.ChainID, cfg.EVMVerifyingContract, privateKey)
	if err != nil {
		return nil, fmt.Errorf("build evm chain client: %w", err)
	}
	adapter, err := evm.New(domain, cfg.EVMPrivateKey, ss, chain, log)
	if err != nil {
		return nil, fmt.Errorf("build evm adapter: %w", err)
	}
	return adapter, nil
}

func buildXRPAdapter(cfg *config.Config, ss *signstate.Store, log *zap.Logger) (*xrp.Adapter, error) {
	chain, err := xrpclient.New(cfg.XRPNodeURL, cfg.XRPPrivateKey, cfg.XRPPublicKey)
	if err != nil {
		return nil, fmt.Errorf("build xrp chain client: %w", err)
	}
	return buildXRPAdapterFromClient(cfg.XRPPrivateKey, cfg.XRPPublicKey, chain, ss, log)
}

func buildXRPAdapterFromClient(privateKeyHex, publicKeyHex string, chain xrp.ChainClient, ss *signstate.Store, log *zap.Logger) (*xrp.Adapter, error) {
	return xrp.New(privateKeyHex, publicKeyHex, ss, chain, log), nil
}

func buildAptosAdapter(cfg *config.Config, ss *signstate.Store, log *zap.Logger) (*aptos.Adapter, error) {
	chain := aptosclient.New(cfg.AptosNodeURL, "", cfg.AptosAccount, cfg.AptosCoinType)
	return buildAptosAdapterFromClient(cfg.AptosPrivateKey, chain, ss, log)
}

func buildAptosAdapterFromClient(seedHex string, chain aptos.ChainClient, ss *signstate.Store, log *zap.Logger) (*aptos.Adapter, error) {
	return aptos.New(seedHex, ss, chain, log)
}


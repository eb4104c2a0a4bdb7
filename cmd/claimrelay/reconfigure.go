package main

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/chainclients/aptosclient"
	"github.com/socialwire/claimbridge/internal/chainclients/xrpclient"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/config"
	"github.com/socialwire/claimbridge/internal/httpapi"
)

// liveReconfigurer implements httpapi.ReconfigureAdapters by rebuilding a
// chain client and adapter from a request and re-registering it, the
// only place that holds the long-lived RPC clients each adapter wraps.
type liveReconfigurer struct {
	cfg       *config.Config
	signstate *signstate.Store
	adapters  *chainadapter.Registry
	log       *zap.Logger
}

func (r *liveReconfigurer) ReconfigureEVM(req httpapi.ConfigureEVMRequest) error {
	domain := claimcodec.EIP712Domain{
		Name:              req.DomainName,
		Version:           req.DomainVersion,
		ChainID:           big.NewInt(req.ChainID),
		VerifyingContract: req.VerifyingContract,
	}
	cfg := *r.cfg
	cfg.EVMPrivateKey = req.PrivateKeyHex
	cfg.EVMVerifyingContract = req.VerifyingContract

	adapter, err := buildEVMAdapter(context.Background(), &cfg, domain, r.signstate, r.log)
	if err != nil {
		return fmt.Errorf("reconfigure evm: %w", err)
	}
	r.adapters.Register(adapter)
	return nil
}

func (r *liveReconfigurer) ReconfigureXRP(req httpapi.ConfigureXRPRequest) error {
	chain, err := xrpclient.New(r.cfg.XRPNodeURL, req.PrivateKeyHex, req.PublicKeyHex)
	if err != nil {
		return fmt.Errorf("reconfigure xrp: %w", err)
	}
	adapter, err := buildXRPAdapterFromClient(req.PrivateKeyHex, req.PublicKeyHex, chain, r.signstate, r.log)
	if err != nil {
		return fmt.Errorf("reconfigure xrp: %w", err)
	}
	r.adapters.Register(adapter)
	return nil
}

func (r *liveReconfigurer) ReconfigureAptos(req httpapi.ConfigureAptosRequest) error {
	chain := aptosclient.New(r.cfg.AptosNodeURL, "", r.cfg.AptosAccount, req.CoinType)
	adapter, err := buildAptosAdapterFromClient(req.SeedHex, chain, r.signstate, r.log)
	if err != nil {
		return fmt.Errorf("reconfigure aptos: %w", err)
	}
	r.adapters.Register(adapter)
	return nil
}

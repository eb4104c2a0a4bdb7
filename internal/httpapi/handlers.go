package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/socialwire/claimbridge/internal/claimtypes"
	"github.com/socialwire/claimbridge/internal/settlement"
)

// claimView is the JSON-safe projection of a claimtypes.SignedClaim.
type claimView struct {
	Chain             string `json:"chain"`
	ChannelKey        string `json:"channelKey"`
	Sequence          string `json:"sequence"`
	TransferredAmount string `json:"transferredAmount,omitempty"`
	LockedAmount      string `json:"lockedAmount,omitempty"`
	Signature         string `json:"signature"`
	Signer            string `json:"signer"`
}

func toClaimView(c claimtypes.SignedClaim) claimView {
	v := claimView{
		Chain:      string(c.Chain()),
		ChannelKey: c.ChannelKey(),
		Sequence:   c.Sequence(),
		Signer:     c.Signer(),
	}
	switch claim := c.(type) {
	case claimtypes.EVMClaim:
		v.TransferredAmount = claim.TransferredAmount
		v.LockedAmount = claim.LockedAmount
		v.Signature = claim.Signature
	case claimtypes.XRPClaim:
		v.TransferredAmount = settlement.ClaimedAmount(c)
		v.Signature = claim.Signature
	case claimtypes.AptosClaim:
		v.TransferredAmount = settlement.ClaimedAmount(c)
		v.Signature = claim.Signature
	}
	return v
}

// handleGetClaims serves GET /claims/:peerId?chain=evm|xrp|aptos.
func (s *Server) handleGetClaims(c *gin.Context) {
	if !s.requireClaimExchange(c) {
		return
	}
	peerID := c.Param("peerId")
	chain, ok := parseChain(c.Query("chain"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown chain, expected evm|xrp|aptos"})
		return
	}

	if chain == "" {
		byChain := s.store.ClaimsForPeer(peerID)
		out := make(map[string][]claimView, len(byChain))
		for ch, claims := range byChain {
			views := make([]claimView, 0, len(claims))
			for _, cl := range claims {
				views = append(views, toClaimView(cl))
			}
			out[string(ch)] = views
		}
		c.JSON(http.StatusOK, out)
		return
	}

	claims := s.store.ClaimsForPeerChain(peerID, chain)
	views := make([]claimView, 0, len(claims))
	for _, cl := range claims {
		views = append(views, toClaimView(cl))
	}
	c.JSON(http.StatusOK, views)
}

// SettlementExecuteRequest is the body for POST /settlement/execute.
// chain disambiguates tokenId's namespace across chain families,
// resolved here (see DESIGN.md) by requiring the caller to name it
// explicitly.
type SettlementExecuteRequest struct {
	PeerID  string `json:"peerId" binding:"required"`
	TokenID string `json:"tokenId" binding:"required"`
	Chain   string `json:"chain" binding:"required"`
}

func (s *Server) handleSettlementExecute(c *gin.Context) {
	if !s.requireClaimExchange(c) {
		return
	}
	var req SettlementExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	chain, ok := parseChain(req.Chain)
	if !ok || chain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown chain, expected evm|xrp|aptos"})
		return
	}
	if s.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement subsystem not configured"})
		return
	}

	started := s.trigger.ExecuteNow(context.Background(), req.PeerID, chain, req.TokenID)
	if !started {
		c.JSON(http.StatusOK, gin.H{"state": settlement.StateInProgress})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": settlement.StatePending})
}

func (s *Server) handleSettlementStatus(c *gin.Context) {
	if !s.requireClaimExchange(c) {
		return
	}
	peerID := c.Param("peerId")
	tokenID := c.Query("tokenId")
	chain, ok := parseChain(c.Query("chain"))
	if !ok || chain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or missing chain, expected evm|xrp|aptos"})
		return
	}
	if s.trigger == nil || s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement subsystem not configured"})
		return
	}

	state := s.trigger.Status(chain, tokenID)
	balance := "0"
	if claim, ok := s.store.Latest(peerID, chain, tokenID); ok {
		balance = settlement.ClaimedAmount(claim)
	}
	c.JSON(http.StatusOK, gin.H{"peerId": peerID, "tokenId": tokenID, "balance": balance, "state": state})
}

// ConfigureEVMRequest reconfigures (or first-configures) the EVM chain
// adapter at runtime.
type ConfigureEVMRequest struct {
	DomainName        string `json:"domainName" binding:"required"`
	DomainVersion     string `json:"domainVersion" binding:"required"`
	ChainID           int64  `json:"chainId" binding:"required"`
	VerifyingContract string `json:"verifyingContract" binding:"required"`
	PrivateKeyHex     string `json:"privateKeyHex" binding:"required"`
}

// ConfigureXRPRequest reconfigures the XRP chain adapter at runtime.
type ConfigureXRPRequest struct {
	PrivateKeyHex string `json:"privateKeyHex" binding:"required"`
	PublicKeyHex  string `json:"publicKeyHex" binding:"required"`
}

// ConfigureAptosRequest reconfigures the Aptos chain adapter at runtime.
type ConfigureAptosRequest struct {
	SeedHex  string `json:"seedHex" binding:"required"`
	CoinType string `json:"coinType" binding:"required"`
}

func (s *Server) handleConfigureEVM(c *gin.Context) {
	var req ConfigureEVMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if s.reconfig == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconfiguration not supported by this process"})
		return
	}
	if err := s.reconfig.ReconfigureEVM(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "evm adapter reconfigured"})
}

func (s *Server) handleConfigureXRP(c *gin.Context) {
	var req ConfigureXRPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if s.reconfig == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconfiguration not supported by this process"})
		return
	}
	if err := s.reconfig.ReconfigureXRP(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "xrp adapter reconfigured"})
}

func (s *Server) handleConfigureAptos(c *gin.Context) {
	var req ConfigureAptosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if s.reconfig == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconfiguration not supported by this process"})
		return
	}
	if err := s.reconfig.ReconfigureAptos(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aptos adapter reconfigured"})
}

// ConfigureSettlementRequest updates the settlement threshold.
type ConfigureSettlementRequest struct {
	Threshold string `json:"threshold" binding:"required"`
}

func (s *Server) handleConfigureSettlement(c *gin.Context) {
	var req ConfigureSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a decimal string"})
		return
	}
	if s.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement subsystem not configured"})
		return
	}
	s.trigger.SetThreshold(threshold)
	c.JSON(http.StatusOK, gin.H{"status": "settlement threshold updated", "threshold": req.Threshold})
}

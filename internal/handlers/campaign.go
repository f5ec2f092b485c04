package handlers

import (
	"net/http"
	"strconv"

	"kickstarter/internal/kickstarter"
	"kickstarter/internal/metadata"
	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
)

// InitializeCampaignRequest is the body of POST /campaigns. The operator is
// the request signer.
type InitializeCampaignRequest struct {
	BaseMint                  string            `json:"base_mint" binding:"required"`
	QuoteMint                 string            `json:"quote_mint" binding:"required"`
	Treasury                  string            `json:"treasury" binding:"required"`
	MinimumRaise              uint64            `json:"minimum_raise" binding:"required"`
	HardCap                   uint64            `json:"hard_cap"`
	TotalTokensForSale        uint64            `json:"total_tokens_for_sale" binding:"required"`
	PerformancePool           uint64            `json:"performance_pool"`
	LaunchDurationSeconds     uint32            `json:"launch_duration_seconds" binding:"required"`
	TeamSpendingAllowance     uint64            `json:"team_spending_allowance"`
	PackageUnlockDelaySeconds int64             `json:"package_unlock_delay_seconds"`
	Metadata                  metadata.Metadata `json:"metadata"`
}

func (h *Handler) InitializeCampaign(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	var request InitializeCampaignRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	baseMint, ok := parseKey(c, "base_mint", request.BaseMint)
	if !ok {
		return
	}
	quoteMint, ok := parseKey(c, "quote_mint", request.QuoteMint)
	if !ok {
		return
	}
	treasury, ok := parseKey(c, "treasury", request.Treasury)
	if !ok {
		return
	}

	campaign, err := h.engine.InitializeCampaign(c.Request.Context(), kickstarter.InitializeParams{
		Operator:                  operator,
		BaseMint:                  baseMint,
		QuoteMint:                 quoteMint,
		Treasury:                  treasury,
		MinimumRaise:              request.MinimumRaise,
		HardCap:                   request.HardCap,
		TotalTokensForSale:        request.TotalTokensForSale,
		PerformancePool:           request.PerformancePool,
		LaunchDurationSeconds:     request.LaunchDurationSeconds,
		TeamSpendingAllowance:     request.TeamSpendingAllowance,
		PackageUnlockDelaySeconds: request.PackageUnlockDelaySeconds,
		Metadata:                  request.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// GetCampaign answers the public view, or the observer view when the request
// is signed by an active observer.
func (h *Handler) GetCampaign(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	view, err := h.engine.GetCampaign(c.Request.Context(), address, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListCampaigns supports ?status=, ?limit= (default 20, max 100) and ?offset=
func (h *Handler) ListCampaigns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		badRequest(c, "limit must be between 1 and 100")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must not be negative")
		return
	}

	campaigns, total, err := h.engine.ListCampaigns(c.Request.Context(), models.CampaignStatus(c.Query("status")), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns, "total": total})
}

// operatorTransition runs a body-less operator transition on :address
func (h *Handler) operatorTransition(run func(c *gin.Context, address solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		operator, ok := signer(c)
		if !ok {
			return
		}
		address, ok := campaignParam(c)
		if !ok {
			return
		}
		campaign, err := run(c, address, operator)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, campaign)
	}
}

func (h *Handler) StartPublicRound() gin.HandlerFunc {
	return h.operatorTransition(func(c *gin.Context, address solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
		return h.engine.StartPublicRound(c.Request.Context(), address, operator)
	})
}

func (h *Handler) StartPrivateRound() gin.HandlerFunc {
	return h.operatorTransition(func(c *gin.Context, address solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
		return h.engine.StartPrivateRound(c.Request.Context(), address, operator)
	})
}

func (h *Handler) EndPrivateRound() gin.HandlerFunc {
	return h.operatorTransition(func(c *gin.Context, address solana.PublicKey, operator solana.PublicKey) (*models.Campaign, error) {
		return h.engine.EndPrivateRound(c.Request.Context(), address, operator)
	})
}

type MinimumRaiseRequest struct {
	MinimumRaise uint64 `json:"minimum_raise" binding:"required"`
}

func (h *Handler) SetMinimumRaise(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request MinimumRaiseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	campaign, err := h.engine.SetMinimumRaise(c.Request.Context(), address, operator, request.MinimumRaise)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// FinalizeRequest attests the private aggregate after undelegation
type FinalizeRequest struct {
	CommitmentsRoot string `json:"commitments_root" binding:"required"`
	AttestedTotal   uint64 `json:"attested_total"`
}

func (h *Handler) FinalizePrivateRound(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request FinalizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	campaign, err := h.engine.FinalizePrivateRound(c.Request.Context(), address, operator, request.CommitmentsRoot, request.AttestedTotal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) VaultBalance(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	kind := kickstarter.VaultKind(c.Param("kind"))
	balance, err := h.engine.VaultBalance(c.Request.Context(), address, kind, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "balance": balance})
}

// PerformancePackageRequest configures one slot of the performance pool
type PerformancePackageRequest struct {
	Index      *uint8 `json:"index" binding:"required"`
	Multiplier uint8  `json:"multiplier" binding:"required"`
	Allocation uint64 `json:"allocation" binding:"required"`
}

func (h *Handler) ConfigurePerformancePackage(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request PerformancePackageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	pkg, err := h.engine.ConfigurePerformancePackage(c.Request.Context(), address, operator, kickstarter.PerformancePackageParams{
		Index:      *request.Index,
		Multiplier: request.Multiplier,
		Allocation: request.Allocation,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (h *Handler) ListPerformancePackages(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	packages, err := h.engine.ListPerformancePackages(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

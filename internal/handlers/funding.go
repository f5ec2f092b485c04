package handlers

import (
	"net/http"

	"kickstarter/internal/kickstarter"
	"kickstarter/internal/middleware"

	"github.com/gin-gonic/gin"
)

type FundRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// Fund commits public-round quote tokens of the signer
func (h *Handler) Fund(c *gin.Context) {
	funder, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request FundRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	position, err := h.engine.Fund(c.Request.Context(), address, funder, request.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, position)
}

func (h *Handler) GetPublicPosition(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	funder, ok := keyParam(c, "funder")
	if !ok {
		return
	}
	position, err := h.engine.GetPublicPosition(c.Request.Context(), address, funder)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, position)
}

// PrivateFundRequest is a confidential commitment of the signer. Salt is 32
// bytes hex encoded. The executing validator is the countersigner of the
// request.
type PrivateFundRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
	Salt   string `json:"salt" binding:"required"`
}

func (h *Handler) FundPrivate(c *gin.Context) {
	funder, ok := signer(c)
	if !ok {
		return
	}
	validator, ok := middleware.Cosigner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "validator countersignature required", "code": "unauthorized"})
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request PrivateFundRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	salt, err := kickstarter.ParseSalt(request.Salt)
	if err != nil {
		respondError(c, err)
		return
	}

	receipt, err := h.engine.FundPrivate(c.Request.Context(), kickstarter.PrivateFunding{
		Campaign:  address,
		Funder:    funder,
		Amount:    request.Amount,
		Salt:      salt[:],
		Validator: validator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ListPrivatePositions is visible to active observers only; the signer is the
// viewer.
func (h *Handler) ListPrivatePositions(c *gin.Context) {
	viewer, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	positions, err := h.engine.ListPrivatePositions(c.Request.Context(), address, viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

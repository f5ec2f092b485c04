package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type DelegateRequest struct {
	Validator string `json:"validator" binding:"required"`
}

func (h *Handler) DelegatePrivateState(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request DelegateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	validator, ok := parseKey(c, "validator", request.Validator)
	if !ok {
		return
	}
	record, err := h.engine.DelegatePrivateState(c.Request.Context(), address, operator, validator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

func (h *Handler) UndelegatePrivateState(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.UndelegatePrivateState(c.Request.Context(), address, operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

func (h *Handler) GetDelegation(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.GetDelegation(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// RefreshDelegation performs one status query, it never waits
func (h *Handler) RefreshDelegation(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.RefreshDelegationStatus(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

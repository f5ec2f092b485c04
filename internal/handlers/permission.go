package handlers

import (
	"net/http"

	"kickstarter/pkg/rollup"

	"github.com/gin-gonic/gin"
)

type PermissionMemberRequest struct {
	Pubkey       string              `json:"pubkey" binding:"required"`
	Capabilities rollup.Capabilities `json:"capabilities"`
}

type GrantPermissionRequest struct {
	Members []PermissionMemberRequest `json:"members" binding:"required"`
}

func (h *Handler) GrantPrivatePermission(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	var request GrantPermissionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err.Error())
		return
	}
	members := make([]rollup.Member, 0, len(request.Members))
	for _, m := range request.Members {
		key, ok := parseKey(c, "member pubkey", m.Pubkey)
		if !ok {
			return
		}
		members = append(members, rollup.Member{Pubkey: key, Capabilities: m.Capabilities})
	}

	record, err := h.engine.GrantPrivatePermission(c.Request.Context(), address, operator, members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

func (h *Handler) GetPermission(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.GetPermission(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) RefreshPermission(c *gin.Context) {
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.RefreshPermissionStatus(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) RevokePermission(c *gin.Context) {
	operator, ok := signer(c)
	if !ok {
		return
	}
	address, ok := campaignParam(c)
	if !ok {
		return
	}
	record, err := h.engine.RevokePermission(c.Request.Context(), address, operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

package handlers

import (
	"errors"
	"net/http"

	"kickstarter/internal/kickstarter"
	"kickstarter/internal/middleware"
	"kickstarter/pkg/rollup"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Handler serves the kickstarter HTTP API on top of the engine
type Handler struct {
	engine *kickstarter.Engine
	hub    *EventHub
}

func NewHandler(engine *kickstarter.Engine, hub *EventHub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, kickstarter.ErrCampaignNotFound), errors.Is(err, kickstarter.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, kickstarter.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, kickstarter.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, kickstarter.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kickstarter.ErrInvalidCampaignState),
		errors.Is(err, kickstarter.ErrPermissionNotActive),
		errors.Is(err, kickstarter.ErrDelegationNotActive),
		errors.Is(err, kickstarter.ErrDuplicateCommitment),
		errors.Is(err, kickstarter.ErrRaiseCapExceeded),
		errors.Is(err, kickstarter.ErrPerformancePoolExceeded),
		errors.Is(err, kickstarter.ErrPackageConfigured),
		errors.Is(err, kickstarter.ErrFundingWindowClosed),
		errors.Is(err, kickstarter.ErrInvalidAttestation):
		return http.StatusConflict
	case errors.Is(err, rollup.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": kickstarter.ErrorCode(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_parameters"})
}

// campaignParam parses the :address path parameter
func campaignParam(c *gin.Context) (solana.PublicKey, bool) {
	return keyParam(c, "address")
}

func keyParam(c *gin.Context, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return solana.PublicKey{}, false
	}
	return key, true
}

func parseKey(c *gin.Context, field string, value string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		badRequest(c, "invalid "+field)
		return solana.PublicKey{}, false
	}
	return key, true
}

// viewer returns the verified signer of an optionally signed request, or the
// zero key for an anonymous one.
func viewer(c *gin.Context) solana.PublicKey {
	key, _ := middleware.Signer(c)
	return key
}

// signer returns the verified request signer. Routes without the signature
// middleware have none.
func signer(c *gin.Context) (solana.PublicKey, bool) {
	key, ok := middleware.Signer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signed request required", "code": "unauthorized"})
	}
	return key, ok
}

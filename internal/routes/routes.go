package routes

import (
	"net/http"
	"strings"
	"time"

	"kickstarter/internal/handlers"
	"kickstarter/internal/middleware"
	"kickstarter/pkg/rollup"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the router outside the handlers themselves
type Options struct {
	AllowedOrigins  []string
	RateLimit       middleware.RateLimiterConfig
	HealthEndpoints []string
	Signatures      middleware.SignatureConfig
}

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestMetrics(), cors(opts.AllowedOrigins))

	r.Any("/health", health(opts.HealthEndpoints))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	signed := middleware.RequireSignature(opts.Signatures)
	SetupCampaignRoutes(r, h, opts, signed)
	SetupPermissionRoutes(r, h, signed)
	SetupDelegationRoutes(r, h, signed)
	SetupEventRoutes(r, h)

	return r
}

var signedHeaders = []string{
	middleware.HeaderSigner,
	middleware.HeaderSignature,
	middleware.HeaderTimestamp,
	middleware.HeaderNonce,
	middleware.HeaderValidator,
	middleware.HeaderValidatorSignature,
}

func cors(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, Cache-Control, X-Requested-With, "+strings.Join(signedHeaders, ", "))
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// health answers ok, or 503 when a configured rollup endpoint is unhealthy
func health(endpoints []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(endpoints) == 0 {
			c.String(http.StatusOK, "ok")
			return
		}
		checks := rollup.CheckEndpoints(c.Request.Context(), endpoints, 2*time.Second)
		status := http.StatusOK
		for _, check := range checks {
			if !check.OK {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"endpoints": checks})
	}
}

// SetupCampaignRoutes sets up the campaign lifecycle, vault and funding routes.
// Views answer the public totals unless signed by an active observer, and
// private funding needs the countersignature of the executing validator.
func SetupCampaignRoutes(r *gin.Engine, h *handlers.Handler, opts Options, signed gin.HandlerFunc) {
	limited := middleware.RateLimiterMiddleware(opts.RateLimit)
	viewer := middleware.OptionalSignature(opts.Signatures)
	cosigned := middleware.RequireCosignature(opts.Signatures)

	campaigns := r.Group("/campaigns")
	{
		campaigns.GET("", h.ListCampaigns)
		campaigns.POST("", signed, h.InitializeCampaign)
		campaigns.GET("/:address", viewer, h.GetCampaign)
		campaigns.POST("/:address/public-round", signed, h.StartPublicRound())
		campaigns.POST("/:address/private-round", signed, h.StartPrivateRound())
		campaigns.POST("/:address/private-round/end", signed, h.EndPrivateRound())
		campaigns.PUT("/:address/minimum-raise", signed, h.SetMinimumRaise)
		campaigns.POST("/:address/finalize", signed, h.FinalizePrivateRound)
		campaigns.POST("/:address/performance-packages", signed, h.ConfigurePerformancePackage)
		campaigns.GET("/:address/performance-packages", h.ListPerformancePackages)
		campaigns.GET("/:address/vaults/:kind", viewer, h.VaultBalance)

		campaigns.POST("/:address/fund", limited, signed, h.Fund)
		campaigns.GET("/:address/positions/:funder", h.GetPublicPosition)
		campaigns.POST("/:address/private-fund", limited, signed, cosigned, h.FundPrivate)
		campaigns.GET("/:address/private-positions", signed, h.ListPrivatePositions)
	}
}

// SetupPermissionRoutes sets up the private state permission routes
func SetupPermissionRoutes(r *gin.Engine, h *handlers.Handler, signed gin.HandlerFunc) {
	permission := r.Group("/campaigns/:address/permission")
	{
		permission.GET("", h.GetPermission)
		permission.POST("", signed, h.GrantPrivatePermission)
		permission.POST("/refresh", h.RefreshPermission)
		permission.DELETE("", signed, h.RevokePermission)
	}
}

// SetupDelegationRoutes sets up the private state delegation routes
func SetupDelegationRoutes(r *gin.Engine, h *handlers.Handler, signed gin.HandlerFunc) {
	delegation := r.Group("/campaigns/:address/delegation")
	{
		delegation.GET("", h.GetDelegation)
		delegation.POST("", signed, h.DelegatePrivateState)
		delegation.POST("/refresh", h.RefreshDelegation)
		delegation.DELETE("", signed, h.UndelegatePrivateState)
	}
}

func SetupEventRoutes(r *gin.Engine, h *handlers.Handler) {
	r.GET("/events/stream", h.StreamEvents)
}

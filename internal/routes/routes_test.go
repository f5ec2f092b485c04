package routes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kickstarter/internal/custody"
	"kickstarter/internal/handlers"
	"kickstarter/internal/kickstarter"
	"kickstarter/internal/metadata"
	"kickstarter/internal/middleware"
	"kickstarter/internal/models"
	"kickstarter/pkg/rollup"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type api struct {
	t         *testing.T
	router    *gin.Engine
	ledger    *custody.Ledger
	sim       *rollup.Simulator
	hub       *handlers.EventHub
	operator  solana.PrivateKey
	validator solana.PrivateKey
	baseMint  solana.PublicKey
	quoteMint solana.PublicKey
	issuer    solana.PublicKey
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	a := &api{
		t:         t,
		ledger:    custody.NewLedger(db),
		sim:       rollup.NewSimulator(),
		hub:       handlers.NewEventHub(),
		operator:  solana.NewWallet().PrivateKey,
		validator: solana.NewWallet().PrivateKey,
		baseMint:  solana.NewWallet().PublicKey(),
		quoteMint: solana.NewWallet().PublicKey(),
		issuer:    solana.NewWallet().PublicKey(),
	}
	engine := kickstarter.NewEngine(db, a.ledger, metadata.NewRegistry(db), a.sim, kickstarter.WithEmitter(a.hub))
	a.router = SetupRouter(handlers.NewHandler(engine, a.hub), Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		RateLimit:      middleware.RateLimiterConfig{RequestsPerSecond: 100, Burst: 100},
		Signatures:     middleware.SignatureConfig{Store: middleware.NewSignatureLedger(db)},
	})

	_, err = a.ledger.CreateMint(nil, a.baseMint, a.operator.PublicKey(), 6)
	require.NoError(t, err)
	_, err = a.ledger.CreateMint(nil, a.quoteMint, a.issuer, 6)
	require.NoError(t, err)
	return a
}

// request builds a request signed by key and countersigned by each cosigner.
// Calling it again yields the same request with the same headers.
func (a *api) request(key solana.PrivateKey, method, uri string, body interface{}, cosigner solana.PrivateKey) func() *http.Request {
	a.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(a.t, err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if key != nil {
		timestamp, nonce := time.Now().Unix(), uuid.NewString()
		payload := middleware.SigningPayload(method, uri, timestamp, nonce, raw)
		sig, err := key.Sign(payload)
		require.NoError(a.t, err)
		headers.Set(middleware.HeaderSigner, key.PublicKey().String())
		headers.Set(middleware.HeaderSignature, sig.String())
		headers.Set(middleware.HeaderTimestamp, fmt.Sprintf("%d", timestamp))
		headers.Set(middleware.HeaderNonce, nonce)
		if cosigner != nil {
			cosig, err := cosigner.Sign(payload)
			require.NoError(a.t, err)
			headers.Set(middleware.HeaderValidator, cosigner.PublicKey().String())
			headers.Set(middleware.HeaderValidatorSignature, cosig.String())
		}
	}
	return func() *http.Request {
		req := httptest.NewRequest(method, uri, bytes.NewReader(raw))
		req.Header = headers.Clone()
		return req
	}
}

func (a *api) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *api) do(key solana.PrivateKey, method, uri string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.serve(a.request(key, method, uri, body, nil)())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (a *api) newFunder(balance uint64) solana.PrivateKey {
	a.t.Helper()
	key := solana.NewWallet().PrivateKey
	account, err := kickstarter.FunderAccount(key.PublicKey(), a.quoteMint)
	require.NoError(a.t, err)
	_, err = a.ledger.CreateHoldingAccount(nil, account, key.PublicKey(), a.quoteMint)
	require.NoError(a.t, err)
	require.NoError(a.t, a.ledger.MintTo(nil, a.quoteMint, account, a.issuer, balance))
	return key
}

func observer(key solana.PublicKey) map[string]interface{} {
	return map[string]interface{}{"pubkey": key.String(), "capabilities": rollup.ObserverCapabilities()}
}

func TestPrivateFundingOverHTTP(t *testing.T) {
	a := newAPI(t)
	treasury := solana.NewWallet().PublicKey()

	w := a.do(a.operator, http.MethodPost, "/campaigns", map[string]interface{}{
		"base_mint":               a.baseMint.String(),
		"quote_mint":              a.quoteMint.String(),
		"treasury":                treasury.String(),
		"minimum_raise":           200,
		"total_tokens_for_sale":   10,
		"performance_pool":        2,
		"launch_duration_seconds": 86400,
		"metadata":                map[string]string{"name": "Kick", "symbol": "KICK", "uri": "https://example.org/kick.json"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var campaign models.Campaign
	decode(t, w, &campaign)
	base := "/campaigns/" + campaign.Address

	require.Equal(t, http.StatusOK, a.do(a.operator, http.MethodPost, base+"/public-round", nil).Code)
	require.Equal(t, http.StatusOK, a.do(a.operator, http.MethodPost, base+"/private-round", nil).Code)

	member := solana.NewWallet().PublicKey()
	w = a.do(a.operator, http.MethodPost, base+"/permission", map[string]interface{}{
		"members": []interface{}{observer(a.operator.PublicKey()), observer(member)},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var permission models.PermissionRecord
	decode(t, w, &permission)
	assert.Equal(t, models.PermissionStatusPending, permission.Status)

	w = a.do(a.operator, http.MethodPost, base+"/delegation", map[string]string{"validator": a.validator.PublicKey().String()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"permission_not_active"`)

	require.NoError(t, a.sim.ConfirmPermission(solana.MustPublicKeyFromBase58(permission.Target)))
	w = a.do(nil, http.MethodPost, base+"/permission/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &permission)
	assert.Equal(t, models.PermissionStatusActive, permission.Status)

	w = a.do(a.operator, http.MethodPost, base+"/delegation", map[string]string{"validator": a.validator.PublicKey().String()})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var delegation models.DelegationRecord
	decode(t, w, &delegation)
	require.NoError(t, a.sim.ConfirmDelegation(solana.MustPublicKeyFromBase58(delegation.Account)))
	w = a.do(nil, http.MethodPost, base+"/delegation/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &delegation)
	assert.Equal(t, models.DelegationStatusDelegated, delegation.Status)

	funder := a.newFunder(500)
	salt := hex.EncodeToString(bytes.Repeat([]byte{7}, kickstarter.SaltLength))
	commit := map[string]interface{}{"amount": 100, "salt": salt}
	fund := base + "/private-fund"

	t.Run("Funder Alone Cannot Commit", func(t *testing.T) {
		w := a.do(funder, http.MethodPost, fund, commit)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Cosigned By Another Validator", func(t *testing.T) {
		w := a.serve(a.request(funder, http.MethodPost, fund, commit, solana.NewWallet().PrivateKey)())
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"delegation_not_active"`)
	})

	signedCommit := a.request(funder, http.MethodPost, fund, commit, a.validator)
	w = a.serve(signedCommit())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var receipt kickstarter.Receipt
	decode(t, w, &receipt)
	assert.NotEmpty(t, receipt.CommitmentHash)
	assert.NotContains(t, w.Body.String(), funder.PublicKey().String())
	assert.NotContains(t, w.Body.String(), "raised_amount")
	assert.NotContains(t, w.Body.String(), "sequence")

	t.Run("Replayed Commitment", func(t *testing.T) {
		w := a.serve(signedCommit())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"replayed_request"`)
	})

	w = a.serve(a.request(funder, http.MethodPost, fund, commit, a.validator)())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"duplicate_commitment"`)

	w = a.serve(a.request(funder, http.MethodPost, fund, map[string]interface{}{"amount": 1, "salt": "abcd"}, a.validator)())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	public := a.newFunder(100)
	w = a.do(public, http.MethodPost, base+"/fund", map[string]interface{}{"amount": 25})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("Public View", func(t *testing.T) {
		w := a.do(nil, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view kickstarter.CampaignView
		decode(t, w, &view)
		assert.True(t, view.Confidential)
		assert.Equal(t, uint64(25), view.Campaign.RaisedAmount)
		assert.Equal(t, uint64(25), view.QuoteVaultBalance)
		assert.Nil(t, view.PrivateState.InvestorCount)
		assert.Equal(t, models.CampaignStatusDelegated, view.Campaign.Status)

		w = a.do(nil, http.MethodGet, base+"/vaults/quote", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"kind":"quote","balance":25}`, w.Body.String())

		w = a.do(nil, http.MethodGet, "/campaigns", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"raised_amount":25`)
	})

	t.Run("Observer View", func(t *testing.T) {
		w := a.do(a.operator, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var view kickstarter.CampaignView
		decode(t, w, &view)
		assert.False(t, view.Confidential)
		assert.Equal(t, uint64(125), view.Campaign.RaisedAmount)
		assert.Equal(t, uint64(125), view.QuoteVaultBalance)
		require.NotNil(t, view.PrivateState.InvestorCount)
		assert.Equal(t, uint32(1), *view.PrivateState.InvestorCount)

		w = a.do(a.operator, http.MethodGet, base+"/vaults/quote", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"kind":"quote","balance":125}`, w.Body.String())
	})

	t.Run("Stranger View", func(t *testing.T) {
		w := a.do(solana.NewWallet().PrivateKey, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view kickstarter.CampaignView
		decode(t, w, &view)
		assert.True(t, view.Confidential)
		assert.Equal(t, uint64(25), view.Campaign.RaisedAmount)
	})

	w = a.do(a.operator, http.MethodGet, base+"/private-positions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), funder.PublicKey().String())

	w = a.do(solana.NewWallet().PrivateKey, http.MethodGet, base+"/private-positions", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPerformancePackageRoutes(t *testing.T) {
	a := newAPI(t)
	w := a.do(a.operator, http.MethodPost, "/campaigns", map[string]interface{}{
		"base_mint":               a.baseMint.String(),
		"quote_mint":              a.quoteMint.String(),
		"treasury":                solana.NewWallet().PublicKey().String(),
		"minimum_raise":           200,
		"total_tokens_for_sale":   10,
		"performance_pool":        4,
		"launch_duration_seconds": 60,
		"metadata":                map[string]string{"name": "Kick", "symbol": "KICK"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var campaign models.Campaign
	decode(t, w, &campaign)
	packages := "/campaigns/" + campaign.Address + "/performance-packages"

	w = a.do(a.operator, http.MethodPost, packages, map[string]interface{}{"index": 0, "multiplier": 2, "allocation": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(a.operator, http.MethodPost, packages, map[string]interface{}{"index": 0, "multiplier": 2, "allocation": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"package_already_configured"`)

	w = a.do(a.operator, http.MethodPost, packages, map[string]interface{}{"index": 1, "multiplier": 3, "allocation": 2})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"performance_pool_exceeded"`)

	w = a.do(a.operator, http.MethodPost, packages, map[string]interface{}{"multiplier": 3, "allocation": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(solana.NewWallet().PrivateKey, http.MethodPost, packages, map[string]interface{}{"index": 1, "multiplier": 3, "allocation": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(nil, http.MethodGet, packages, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Packages []models.PerformancePackage `json:"packages"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Packages, 1)
	assert.Equal(t, uint64(3), listed.Packages[0].Allocation)
}

func TestCampaignRoutes(t *testing.T) {
	a := newAPI(t)

	t.Run("Unsigned Mutation", func(t *testing.T) {
		w := a.do(nil, http.MethodPost, "/campaigns", map[string]interface{}{"minimum_raise": 1})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Replayed Mutation", func(t *testing.T) {
		req := a.request(a.operator, http.MethodPost, "/campaigns", map[string]interface{}{"minimum_raise": 1}, nil)
		w := a.serve(req())
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = a.serve(req())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"replayed_request"`)
	})

	t.Run("Unknown Campaign", func(t *testing.T) {
		w := a.do(nil, http.MethodGet, "/campaigns/"+solana.NewWallet().PublicKey().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"campaign_not_found"`)
	})

	t.Run("Malformed Address", func(t *testing.T) {
		w := a.do(nil, http.MethodGet, "/campaigns/not-a-key", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("List", func(t *testing.T) {
		w := a.do(nil, http.MethodGet, "/campaigns?limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"campaigns":[],"total":0}`, w.Body.String())

		w = a.do(nil, http.MethodGet, "/campaigns?limit=1000", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Stranger Cannot Drive Transitions", func(t *testing.T) {
		w := a.do(a.operator, http.MethodPost, "/campaigns", map[string]interface{}{
			"base_mint":               a.baseMint.String(),
			"quote_mint":              a.quoteMint.String(),
			"treasury":                solana.NewWallet().PublicKey().String(),
			"minimum_raise":           200,
			"total_tokens_for_sale":   10,
			"launch_duration_seconds": 60,
			"metadata":                map[string]string{"name": "Kick", "symbol": "KICK"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var campaign models.Campaign
		decode(t, w, &campaign)

		w = a.do(solana.NewWallet().PrivateKey, http.MethodPost, "/campaigns/"+campaign.Address+"/public-round", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = a.do(a.operator, http.MethodPost, "/campaigns/"+campaign.Address+"/private-round", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"invalid_campaign_state"`)
	})
}

func TestInfrastructureRoutes(t *testing.T) {
	a := newAPI(t)

	w := a.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = a.do(nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "kickstarter_http_requests_total"))

	req := httptest.NewRequest(http.MethodOptions, "/campaigns", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

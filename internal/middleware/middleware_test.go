package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"kickstarter/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiterMiddleware(RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 2}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterEviction(t *testing.T) {
	rl := newRateLimiterMap(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")
	assert.Equal(t, 2, rl.size())

	now = now.Add(2 * time.Minute)
	rl.getLimiter("10.0.0.3")
	assert.Equal(t, 1, rl.size())
}

func newLedger(t *testing.T) *SignatureLedger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ConsumedSignature{}))
	return NewSignatureLedger(db)
}

var signedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedRequest(t *testing.T, key solana.PrivateKey, method, uri string, body []byte) *http.Request {
	t.Helper()
	return signedRequestAt(t, key, method, uri, body, signedAt, uuid.NewString())
}

func signedRequestAt(t *testing.T, key solana.PrivateKey, method, uri string, body []byte, at time.Time, nonce string) *http.Request {
	t.Helper()
	sig, err := key.Sign(SigningPayload(method, uri, at.Unix(), nonce, body))
	require.NoError(t, err)
	req := httptest.NewRequest(method, uri, bytes.NewReader(body))
	req.Header.Set(HeaderSigner, key.PublicKey().String())
	req.Header.Set(HeaderSignature, sig.String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(at.Unix(), 10))
	req.Header.Set(HeaderNonce, nonce)
	return req
}

func cosign(t *testing.T, req *http.Request, key solana.PrivateKey, body []byte) {
	t.Helper()
	ts, err := strconv.ParseInt(req.Header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	sig, err := key.Sign(SigningPayload(req.Method, req.URL.RequestURI(), ts, req.Header.Get(HeaderNonce), body))
	require.NoError(t, err)
	req.Header.Set(HeaderValidator, key.PublicKey().String())
	req.Header.Set(HeaderValidatorSignature, sig.String())
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireSignature(t *testing.T) {
	cfg := SignatureConfig{Store: newLedger(t), Now: func() time.Time { return signedAt }}
	r := gin.New()
	r.POST("/campaigns", RequireSignature(cfg), func(c *gin.Context) {
		signer, ok := Signer(c)
		require.True(t, ok)
		c.String(http.StatusOK, signer.String())
	})

	key := solana.NewWallet().PrivateKey
	body := []byte(`{"minimum_raise":200}`)

	t.Run("Valid", func(t *testing.T) {
		w := serve(r, signedRequest(t, key, http.MethodPost, "/campaigns", body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, key.PublicKey().String(), w.Body.String())
	})

	t.Run("Tampered Body", func(t *testing.T) {
		req := signedRequest(t, key, http.MethodPost, "/campaigns", body)
		req.Body = httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader([]byte(`{"minimum_raise":1}`))).Body
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})

	t.Run("Other Signer", func(t *testing.T) {
		req := signedRequest(t, key, http.MethodPost, "/campaigns", body)
		req.Header.Set(HeaderSigner, solana.NewWallet().PublicKey().String())
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})

	t.Run("Missing Headers", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
	})

	t.Run("Replayed", func(t *testing.T) {
		req := signedRequestAt(t, key, http.MethodPost, "/campaigns", body, signedAt, "replayed-nonce")
		first := serve(r, req)
		require.Equal(t, http.StatusOK, first.Code)

		for i := 0; i < 3; i++ {
			again := signedRequestAt(t, key, http.MethodPost, "/campaigns", body, signedAt, "replayed-nonce")
			w := serve(r, again)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"replayed_request"`)
		}
	})

	t.Run("Nonce Is Signed", func(t *testing.T) {
		req := signedRequestAt(t, key, http.MethodPost, "/campaigns", body, signedAt, "nonce-a")
		req.Header.Set(HeaderNonce, "nonce-b")
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})

	t.Run("Stale Timestamp", func(t *testing.T) {
		req := signedRequestAt(t, key, http.MethodPost, "/campaigns", body, signedAt.Add(-DefaultMaxSkew-time.Second), uuid.NewString())
		w := serve(r, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "outside the accepted window")
	})

	t.Run("Future Timestamp", func(t *testing.T) {
		req := signedRequestAt(t, key, http.MethodPost, "/campaigns", body, signedAt.Add(DefaultMaxSkew+time.Second), uuid.NewString())
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})

	t.Run("Missing Nonce", func(t *testing.T) {
		req := signedRequest(t, key, http.MethodPost, "/campaigns", body)
		req.Header.Del(HeaderNonce)
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})
}

func TestOptionalSignature(t *testing.T) {
	cfg := SignatureConfig{Store: newLedger(t), Now: func() time.Time { return signedAt }}
	r := gin.New()
	r.GET("/campaigns/x", OptionalSignature(cfg), func(c *gin.Context) {
		signer, _ := Signer(c)
		c.String(http.StatusOK, signer.String())
	})
	key := solana.NewWallet().PrivateKey

	anonymous := serve(r, httptest.NewRequest(http.MethodGet, "/campaigns/x", nil))
	assert.Equal(t, http.StatusOK, anonymous.Code)
	assert.Equal(t, solana.PublicKey{}.String(), anonymous.Body.String())

	signed := serve(r, signedRequest(t, key, http.MethodGet, "/campaigns/x", nil))
	assert.Equal(t, http.StatusOK, signed.Code)
	assert.Equal(t, key.PublicKey().String(), signed.Body.String())

	forged := signedRequest(t, key, http.MethodGet, "/campaigns/x", nil)
	forged.Header.Set(HeaderSigner, solana.NewWallet().PublicKey().String())
	assert.Equal(t, http.StatusUnauthorized, serve(r, forged).Code)
}

func TestRequireCosignature(t *testing.T) {
	cfg := SignatureConfig{Store: newLedger(t), Now: func() time.Time { return signedAt }}
	r := gin.New()
	r.POST("/private-fund", RequireSignature(cfg), RequireCosignature(cfg), func(c *gin.Context) {
		signer, _ := Signer(c)
		cosigner, ok := Cosigner(c)
		require.True(t, ok)
		c.String(http.StatusOK, signer.String()+" "+cosigner.String())
	})

	funder := solana.NewWallet().PrivateKey
	validator := solana.NewWallet().PrivateKey
	body := []byte(`{"amount":100}`)

	t.Run("Countersigned", func(t *testing.T) {
		req := signedRequest(t, funder, http.MethodPost, "/private-fund", body)
		cosign(t, req, validator, body)
		w := serve(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, funder.PublicKey().String()+" "+validator.PublicKey().String(), w.Body.String())
	})

	t.Run("Funder Only", func(t *testing.T) {
		w := serve(r, signedRequest(t, funder, http.MethodPost, "/private-fund", body))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), HeaderValidator)
	})

	t.Run("Claimed Validator", func(t *testing.T) {
		req := signedRequest(t, funder, http.MethodPost, "/private-fund", body)
		cosign(t, req, funder, body)
		req.Header.Set(HeaderValidator, validator.PublicKey().String())
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})
}

func TestSignatureLedger(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()
	signer := solana.NewWallet().PublicKey()
	old := solana.Signature{1}
	recent := solana.Signature{2}

	require.NoError(t, ledger.Consume(ctx, signer, old, signedAt.Add(-time.Hour)))
	require.NoError(t, ledger.Consume(ctx, signer, recent, signedAt))
	assert.True(t, errors.Is(ledger.Consume(ctx, signer, recent, signedAt), ErrReplayed))

	pruned, err := ledger.Prune(ctx, signedAt.Add(-DefaultMaxSkew))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	assert.NoError(t, ledger.Consume(ctx, signer, old, signedAt.Add(-time.Hour)))
	assert.True(t, errors.Is(ledger.Consume(ctx, signer, recent, signedAt), ErrReplayed))
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderSigner    = "X-Signer"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	// HeaderValidator and HeaderValidatorSignature carry the countersignature
	// of the execution authority over the same payload.
	HeaderValidator          = "X-Validator"
	HeaderValidatorSignature = "X-Validator-Signature"

	DefaultMaxSkew = 5 * time.Minute

	maxNonceLength = 64
	signerKey      = "kickstarter.signer"
	cosignerKey    = "kickstarter.cosigner"
	payloadKey     = "kickstarter.signing_payload"
)

// ErrReplayed is returned by a SignatureStore for a signature it has seen
var ErrReplayed = errors.New("signature already used")

// SigningPayload is the message a client signs for a request:
// "METHOD REQUEST_URI\nTIMESTAMP NONCE\n" followed by the raw body. The
// timestamp is in unix seconds.
func SigningPayload(method string, requestURI string, timestamp int64, nonce string, body []byte) []byte {
	ts := strconv.FormatInt(timestamp, 10)
	payload := make([]byte, 0, len(method)+len(requestURI)+len(ts)+len(nonce)+4+len(body))
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, requestURI...)
	payload = append(payload, '\n')
	payload = append(payload, ts...)
	payload = append(payload, ' ')
	payload = append(payload, nonce...)
	payload = append(payload, '\n')
	return append(payload, body...)
}

// SignatureStore remembers accepted signatures. Consume returns ErrReplayed
// when signature was accepted before.
type SignatureStore interface {
	Consume(ctx context.Context, signer solana.PublicKey, signature solana.Signature, signedAt time.Time) error
}

// SignatureConfig controls request authentication
type SignatureConfig struct {
	Store SignatureStore
	// MaxSkew is how far X-Timestamp may be from the server clock.
	MaxSkew time.Duration
	Now     func() time.Time
}

type verifier struct {
	store   SignatureStore
	maxSkew time.Duration
	now     func() time.Time
}

func newVerifier(cfg SignatureConfig) *verifier {
	if cfg.Store == nil {
		panic("middleware: a signature store is required")
	}
	v := &verifier{store: cfg.Store, maxSkew: cfg.MaxSkew, now: cfg.Now}
	if v.maxSkew <= 0 {
		v.maxSkew = DefaultMaxSkew
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

type signedPayload struct {
	message  []byte
	signedAt time.Time
}

// payload rebuilds the signed message of the request once and checks its
// timestamp against the server clock.
func (v *verifier) payload(c *gin.Context) (*signedPayload, bool) {
	if cached, ok := c.Get(payloadKey); ok {
		return cached.(*signedPayload), true
	}

	timestamp, err := strconv.ParseInt(c.GetHeader(HeaderTimestamp), 10, 64)
	if err != nil {
		abortUnauthorized(c, "missing or malformed "+HeaderTimestamp)
		return nil, false
	}
	nonce := c.GetHeader(HeaderNonce)
	if nonce == "" || len(nonce) > maxNonceLength {
		abortUnauthorized(c, "missing or malformed "+HeaderNonce)
		return nil, false
	}
	signedAt := time.Unix(timestamp, 0).UTC()
	if skew := v.now().Sub(signedAt); skew > v.maxSkew || skew < -v.maxSkew {
		abortUnauthorized(c, "request timestamp is outside the accepted window")
		return nil, false
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body", "code": "invalid_parameters"})
			return nil, false
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	p := &signedPayload{
		message:  SigningPayload(c.Request.Method, c.Request.URL.RequestURI(), timestamp, nonce, body),
		signedAt: signedAt,
	}
	c.Set(payloadKey, p)
	return p, true
}

// verify checks the key and signature headers over the request payload and
// consumes the signature.
func (v *verifier) verify(c *gin.Context, keyHeader string, signatureHeader string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(c.GetHeader(keyHeader))
	if err != nil {
		abortUnauthorized(c, "missing or malformed "+keyHeader)
		return solana.PublicKey{}, false
	}
	signature, err := solana.SignatureFromBase58(c.GetHeader(signatureHeader))
	if err != nil {
		abortUnauthorized(c, "missing or malformed "+signatureHeader)
		return solana.PublicKey{}, false
	}
	p, ok := v.payload(c)
	if !ok {
		return solana.PublicKey{}, false
	}
	if !signature.Verify(key, p.message) {
		abortUnauthorized(c, "signature does not match "+keyHeader)
		return solana.PublicKey{}, false
	}

	if err := v.store.Consume(c.Request.Context(), key, signature, p.signedAt); err != nil {
		if errors.Is(err, ErrReplayed) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request was already accepted", "code": "replayed_request"})
			return solana.PublicKey{}, false
		}
		log.WithField("signer", key.String()).Errorf("failed to consume signature: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return solana.PublicKey{}, false
	}
	return key, true
}

// RequireSignature verifies the ed25519 signature of X-Signer over the
// request and records the signer for handlers. A signature is accepted once
// and only within MaxSkew of its timestamp.
func RequireSignature(cfg SignatureConfig) gin.HandlerFunc {
	v := newVerifier(cfg)
	return func(c *gin.Context) {
		signer, ok := v.verify(c, HeaderSigner, HeaderSignature)
		if !ok {
			return
		}
		c.Set(signerKey, signer)
		c.Next()
	}
}

// OptionalSignature lets unsigned requests through. A request carrying a
// signer is verified like RequireSignature.
func OptionalSignature(cfg SignatureConfig) gin.HandlerFunc {
	required := RequireSignature(cfg)
	return func(c *gin.Context) {
		if c.GetHeader(HeaderSigner) == "" && c.GetHeader(HeaderSignature) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// RequireCosignature verifies X-Validator-Signature by X-Validator over the
// payload signed by X-Signer. It runs after RequireSignature.
func RequireCosignature(cfg SignatureConfig) gin.HandlerFunc {
	v := newVerifier(cfg)
	return func(c *gin.Context) {
		cosigner, ok := v.verify(c, HeaderValidator, HeaderValidatorSignature)
		if !ok {
			return
		}
		c.Set(cosignerKey, cosigner)
		c.Next()
	}
}

// Signer returns the verified signer of the request
func Signer(c *gin.Context) (solana.PublicKey, bool) {
	return keyFrom(c, signerKey)
}

// Cosigner returns the verified validator of a countersigned request
func Cosigner(c *gin.Context) (solana.PublicKey, bool) {
	return keyFrom(c, cosignerKey)
}

func keyFrom(c *gin.Context, name string) (solana.PublicKey, bool) {
	v, ok := c.Get(name)
	if !ok {
		return solana.PublicKey{}, false
	}
	key, ok := v.(solana.PublicKey)
	return key, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
}

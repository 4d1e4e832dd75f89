package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiwix/mirrors-qa/internal/config"
	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/store"
	"github.com/kiwix/mirrors-qa/internal/token"
)

// AuthHandler serves the worker authentication handshake (C3/C4).
type AuthHandler struct {
	db     *sql.DB
	tokens *token.Service
	cfg    *config.BackendConfig
}

// NewAuthHandler constructs an AuthHandler with explicit dependencies.
func NewAuthHandler(db *sql.DB, tokens *token.Service, cfg *config.BackendConfig) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens, cfg: cfg}
}

// Authenticate handles POST /auth/authenticate: verifies the RSA-PSS
// handshake headers and mints a bearer token on success.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	message := c.GetHeader("X-SSHAuth-Message")
	signature := c.GetHeader("X-SSHAuth-Signature")
	if message == "" || signature == "" {
		c.Error(apperrors.NewValidation("X-SSHAuth-Message and X-SSHAuth-Signature headers are required"))
		return
	}

	challenge, err := token.ParseChallenge(message)
	if err != nil {
		c.Error(err)
		return
	}

	if err := token.CheckSkew(challenge.Timestamp, time.Now().UTC(), h.cfg.MessageValidity); err != nil {
		c.Error(err)
		return
	}

	q := store.New(h.db)
	worker, err := q.GetWorker(c.Request.Context(), challenge.WorkerID)
	if err != nil {
		if apperrors.IsType(err, apperrors.NotFoundError) {
			c.Error(apperrors.NewAuth("unknown worker"))
			return
		}
		c.Error(err)
		return
	}

	pub, err := token.ParsePublicKeyPEM(worker.PubkeyPEM)
	if err != nil {
		c.Error(err)
		return
	}
	if err := token.VerifySignature(pub, message, signature); err != nil {
		c.Error(err)
		return
	}

	access, expiresIn, err := h.tokens.Mint(worker.ID)
	if err != nil {
		c.Error(err)
		return
	}

	if err := q.TouchWorker(c.Request.Context(), worker.ID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": access,
		"token_type":   "bearer",
		"expires_in":   expiresIn,
	})
}

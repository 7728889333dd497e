// Package webhook receives Lark event callbacks over HTTP.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/domain/apperr"
)

// maxBodyBytes bounds the callback body read into memory
const maxBodyBytes = 1 << 20

// EventProcessor applies a decrypted event payload
type EventProcessor interface {
	ProcessEvent(ctx context.Context, payload []byte) error
}

// Handler handles webhook requests
type Handler struct {
	verifier  *Verifier
	processor EventProcessor
	logger    *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(verifier *Verifier, processor EventProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		verifier:  verifier,
		processor: processor,
		logger:    logger,
	}
}

// Handle verifies, decrypts and processes one callback. The event is
// applied before responding; only retryable failures answer 500 so
// Lark redelivers.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if signature := c.GetHeader("X-Lark-Signature"); signature != "" {
		timestamp := c.GetHeader("X-Lark-Request-Timestamp")
		nonce := c.GetHeader("X-Lark-Request-Nonce")
		if !h.verifier.VerifySignature(timestamp, nonce, signature, body) {
			h.logger.Warn("Invalid webhook signature",
				zap.String("timestamp", timestamp),
				zap.String("nonce", nonce))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	payload, err := h.verifier.Open(body)
	if err != nil {
		h.logger.Error("Failed to open webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	challenge, isChallenge, err := h.verifier.Challenge(payload)
	if err != nil {
		h.logger.Error("Challenge verification failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Challenge verification failed"})
		return
	}
	if isChallenge {
		h.logger.Info("Challenge verified successfully")
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	if err := h.verifier.VerifyToken(payload); err != nil {
		h.logger.Warn("Webhook token rejected", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Invalid token"})
		return
	}

	if err := h.processor.ProcessEvent(c.Request.Context(), payload); err != nil {
		if apperr.IsRetryable(err) {
			h.logger.Error("Event processing failed, requesting redelivery", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
			return
		}
		h.logger.Warn("Event processing failed, dropping event", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"message": "Event dropped"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event received"})
}

func statusFor(err error) int {
	if errors.Is(err, ErrInvalidToken) {
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}

package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBytes       = 1 << 20
)

func (server *Server) handlePackages(ctx *gin.Context) {
	if server.deps.Payments == nil {
		server.respondFailure(ctx, errPaymentsDisabled)
		return
	}
	respondOK(ctx, gin.H{"packages": server.deps.Payments.Packages()})
}

func (server *Server) handleCheckout(ctx *gin.Context) {
	if server.deps.Payments == nil {
		server.respondFailure(ctx, errPaymentsDisabled)
		return
	}
	var request struct {
		Gems int64 `json:"gems"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	userID := callerID(ctx)
	user, err := server.deps.Economy.User(ctx.Request.Context(), userID)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	checkoutCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.cfg.ExternalTimeout)
	defer cancel()
	checkout, err := server.deps.Payments.Checkout(checkoutCtx, userID, user.Email, request.Gems, key.String())
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, checkout)
}

// handleStripeWebhook verifies the raw body; Stripe retries anything but a 2xx.
func (server *Server) handleStripeWebhook(ctx *gin.Context) {
	if server.deps.Payments == nil {
		server.respondFailure(ctx, errPaymentsDisabled)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBytes))
	if err != nil {
		server.respondFailure(ctx, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	outcome, err := server.deps.Payments.HandleWebhook(ctx.Request.Context(), payload, ctx.GetHeader(stripeSignatureHeader))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	if outcome.Credited {
		server.logger.Info("stripe deposit credited", zap.Int64("gems", outcome.Gems))
	}
	respondOK(ctx, outcome)
}

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/promorang/internal/admin"
	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"github.com/MarkoPoloResearchLab/promorang/internal/catalog"
	"github.com/MarkoPoloResearchLab/promorang/internal/oauth"
	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
	"github.com/MarkoPoloResearchLab/promorang/internal/payments"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error codes carried in the failure envelope.
const (
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeBadRequest         = "BAD_REQUEST"
	codeUnsupportedPair    = "UNSUPPORTED_PAIR"
	codeBelowMinimum       = "BELOW_MINIMUM"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	codeResourceExhausted  = "RESOURCE_EXHAUSTED"
	codeDailyLimitExceeded = "DAILY_LIMIT_EXCEEDED"
	codeRateLimited        = "RATE_LIMITED"
	codeInternal           = "INTERNAL_ERROR"

	internalMessage = "internal error"
)

var (
	errPaymentsDisabled = errors.New("payments are not configured")
	errOAuthDisabled    = errors.New("google sign-in is not configured")
	errInvalidBody      = errors.New("expected JSON body")
)

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type classification struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var classifications = []classification{
	{economy.ErrInsufficientFunds, http.StatusPaymentRequired, codeInsufficientFunds},
	{economy.ErrUnsupportedPair, http.StatusBadRequest, codeUnsupportedPair},
	{economy.ErrBelowMinimum, http.StatusBadRequest, codeBelowMinimum},
	{economy.ErrDailyLimitExceeded, http.StatusTooManyRequests, codeDailyLimitExceeded},
	{economy.ErrResourceExhausted, http.StatusConflict, codeResourceExhausted},

	{economy.ErrUserNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrEntryNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrContentNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrDropNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrApplicationNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrProjectNotFound, http.StatusNotFound, codeNotFound},
	{economy.ErrPaymentNotFound, http.StatusNotFound, codeNotFound},
	{partners.ErrAppNotFound, http.StatusNotFound, codeNotFound},
	{partners.ErrEventNotFound, http.StatusNotFound, codeNotFound},
	{automation.ErrJobNotFound, http.StatusNotFound, codeNotFound},

	{economy.ErrAlreadyApplied, http.StatusConflict, codeConflict},
	{economy.ErrDuplicateIdempotencyKey, http.StatusConflict, codeConflict},
	{economy.ErrApplicationClosed, http.StatusConflict, codeConflict},
	{economy.ErrStakeClosed, http.StatusConflict, codeConflict},
	{economy.ErrPaymentClosed, http.StatusConflict, codeConflict},
	{economy.ErrEntryNotReversible, http.StatusConflict, codeConflict},
	{automation.ErrJobRunning, http.StatusConflict, codeConflict},

	{partners.ErrInvalidAPIKey, http.StatusUnauthorized, codeUnauthorized},
	{payments.ErrInvalidSignature, http.StatusBadRequest, codeBadRequest},

	{economy.ErrDropClosed, http.StatusBadRequest, codeBadRequest},
	{economy.ErrProjectClosed, http.StatusBadRequest, codeBadRequest},
	{economy.ErrContentUnavailable, http.StatusBadRequest, codeBadRequest},
	{economy.ErrSelfSettlement, http.StatusBadRequest, codeBadRequest},
	{economy.ErrUnknownStakeChannel, http.StatusBadRequest, codeBadRequest},
	{economy.ErrBelowMinimumWithdrawal, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidUserID, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidIdempotencyKey, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidReference, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidAmount, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidCurrency, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidEntryType, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidTier, http.StatusBadRequest, codeBadRequest},
	{economy.ErrInvalidIdentity, http.StatusBadRequest, codeBadRequest},
	{catalog.ErrInvalidContent, http.StatusBadRequest, codeBadRequest},
	{catalog.ErrInvalidDrop, http.StatusBadRequest, codeBadRequest},
	{catalog.ErrInvalidProject, http.StatusBadRequest, codeBadRequest},
	{admin.ErrInvalidAction, http.StatusBadRequest, codeBadRequest},
	{partners.ErrInvalidApp, http.StatusBadRequest, codeBadRequest},
	{partners.ErrInvalidEvent, http.StatusBadRequest, codeBadRequest},
	{payments.ErrUnknownPackage, http.StatusBadRequest, codeBadRequest},
	{payments.ErrInvalidEvent, http.StatusBadRequest, codeBadRequest},
	{errPaymentsDisabled, http.StatusBadRequest, codeBadRequest},
	{errOAuthDisabled, http.StatusBadRequest, codeBadRequest},
	{errInvalidBody, http.StatusBadRequest, codeBadRequest},

	{payments.ErrProvider, http.StatusBadGateway, codeInternal},
	{oauth.ErrExchange, http.StatusBadGateway, codeInternal},
	{oauth.ErrProfile, http.StatusBadGateway, codeInternal},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, codeInternal},
}

func respondOK(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, envelope{OK: true, Data: data})
}

func respondCreated(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusCreated, envelope{OK: true, Data: data})
}

func respondError(ctx *gin.Context, status int, code string, message string) {
	ctx.AbortWithStatusJSON(status, envelope{OK: false, Error: &errorBody{Code: code, Message: message}})
}

// respondFailure maps err onto the taxonomy. Unclassified errors are logged and reported generically.
func (server *Server) respondFailure(ctx *gin.Context, err error) {
	for _, candidate := range classifications {
		if !errors.Is(err, candidate.target) {
			continue
		}
		message := publicMessage(err, candidate.target)
		if candidate.code == codeInternal {
			server.logger.Error("upstream failure", zap.String("route", ctx.FullPath()), zap.Error(err))
			message = candidate.target.Error()
		}
		respondError(ctx, candidate.status, candidate.code, message)
		return
	}
	server.logger.Error("request failed", zap.String("route", ctx.FullPath()), zap.Error(err))
	respondError(ctx, http.StatusInternalServerError, codeInternal, internalMessage)
}

// publicMessage hides storage wrapping behind the sentinel text.
func publicMessage(err error, target error) string {
	var operationError economy.OperationError
	if errors.As(err, &operationError) {
		return target.Error()
	}
	return err.Error()
}

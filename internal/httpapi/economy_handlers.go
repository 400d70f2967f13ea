package httpapi

import (
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
)

type convertRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (server *Server) handleBalance(ctx *gin.Context) {
	balance, err := server.deps.Economy.Balance(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"balance": balance})
}

func (server *Server) handleProfile(ctx *gin.Context) {
	profile, err := server.deps.Economy.Profile(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, profile)
}

func (server *Server) handleConvert(ctx *gin.Context) {
	var request convertRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	from, err := economy.ParseCurrency(request.From)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	to, err := economy.ParseCurrency(request.To)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	amount, err := economy.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Economy.Convert(ctx.Request.Context(), economy.ConversionRequest{
		UserID:         callerID(ctx),
		From:           from,
		To:             to,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleHistory(ctx *gin.Context) {
	limit, offset, err := paging(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	limit = economy.NormalizeEntriesLimit(limit)
	entries, err := server.deps.Economy.ListEntries(ctx.Request.Context(), callerID(ctx), limit, offset)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"entries": entries, "limit": limit, "offset": max(offset, 0)})
}

func (server *Server) handleReconcile(ctx *gin.Context) {
	reconciliation, err := server.deps.Economy.Reconcile(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, reconciliation)
}

func (server *Server) handleStake(ctx *gin.Context) {
	var request struct {
		Channel string `json:"channel_name"`
		Amount  int64  `json:"amount"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	amount, err := economy.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	stake, err := server.deps.Economy.Stake(ctx.Request.Context(), economy.StakeRequest{
		UserID:         callerID(ctx),
		Channel:        request.Channel,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"stake": stake})
}

func (server *Server) handleFundProject(ctx *gin.Context) {
	var request amountRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	amount, err := economy.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Economy.FundProject(ctx.Request.Context(), economy.FundingRequest{
		BackerID:       callerID(ctx),
		ProjectID:      ctx.Param("id"),
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleBuyShares(ctx *gin.Context) {
	var request struct {
		ContentID string `json:"content_id"`
		Shares    int64  `json:"shares_count"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	shares, err := economy.NewPositiveAmount(request.Shares)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Economy.BuyShares(ctx.Request.Context(), economy.SharePurchaseRequest{
		BuyerID:        callerID(ctx),
		ContentID:      request.ContentID,
		Shares:         shares,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleApplyToDrop(ctx *gin.Context) {
	var request struct {
		SubmissionURL string `json:"submission_url"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	application, err := server.deps.Economy.ApplyToDrop(ctx.Request.Context(), economy.DropApplicationRequest{
		UserID:        callerID(ctx),
		DropID:        ctx.Param("id"),
		SubmissionURL: request.SubmissionURL,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"application": application})
}

func (server *Server) handleWithdraw(ctx *gin.Context) {
	var request amountRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	amount, err := economy.NewPositiveAmount(request.Amount)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	payment, err := server.deps.Economy.Withdraw(ctx.Request.Context(), economy.WithdrawalRequest{
		UserID:         callerID(ctx),
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"payment": payment})
}

package httpapi

import (
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
)

type adminActionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (server *Server) handleModerateContent(ctx *gin.Context) {
	var request adminActionRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Admin.ModerateContent(ctx.Request.Context(), callerID(ctx), ctx.Param("id"), request.Action, request.Reason)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleReviewApplication(ctx *gin.Context) {
	var request adminActionRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Admin.ReviewApplication(ctx.Request.Context(), callerID(ctx), ctx.Param("id"), request.Action)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleAuditEntry(ctx *gin.Context) {
	var request adminActionRequest
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Admin.AuditEntry(ctx.Request.Context(), callerID(ctx), ctx.Param("id"), request.Action, request.Notes)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

func (server *Server) handleRefill(ctx *gin.Context) {
	var request struct {
		UserID string `json:"user_id"`
		Points int64  `json:"points"`
		Keys   int64  `json:"keys"`
		Gems   int64  `json:"gems"`
		Gold   int64  `json:"gold"`
		Reason string `json:"reason"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	userID, err := economy.NewUserID(request.UserID)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	key, err := idempotencyKey(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	entry, err := server.deps.Admin.Refill(ctx.Request.Context(), economy.RefillRequest{
		AdminID:        callerID(ctx),
		UserID:         userID,
		Deltas:         economy.Deltas{Points: request.Points, Keys: request.Keys, Gems: request.Gems, Gold: request.Gold},
		Reason:         request.Reason,
		IdempotencyKey: key,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"entry": entry})
}

func (server *Server) handleAdminLogs(ctx *gin.Context) {
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	logs, err := server.deps.Admin.ListLogs(ctx.Request.Context(), ctx.Query("action"), limit)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"logs": logs})
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (server *Server) handleRegisterApp(ctx *gin.Context) {
	var request struct {
		Name       string `json:"name"`
		WebhookURL string `json:"webhook_url"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	registration, err := server.deps.Partners.RegisterApp(ctx.Request.Context(), callerID(ctx).String(), request.Name, request.WebhookURL)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, registration)
}

func (server *Server) handleListApps(ctx *gin.Context) {
	apps, err := server.deps.Partners.ListApps(ctx.Request.Context(), callerID(ctx).String())
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"apps": apps})
}

func (server *Server) handleAppUsage(ctx *gin.Context) {
	stats, err := server.deps.Partners.UsageStats(ctx.Request.Context(), callerID(ctx).String(), ctx.Param("id"))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, stats)
}

func (server *Server) handleQueueEvent(ctx *gin.Context) {
	var request struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	event, err := server.deps.Partners.QueueEvent(ctx.Request.Context(), callerID(ctx).String(), ctx.Param("id"), request.EventType, request.Payload)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, envelope{OK: true, Data: gin.H{"event": event}})
}

func (server *Server) handleValidateKey(ctx *gin.Context) {
	app, ok := partnerOf(ctx)
	if !ok {
		respondError(ctx, http.StatusUnauthorized, codeUnauthorized, "missing api key")
		return
	}
	respondOK(ctx, gin.H{"valid": true, "app_id": app.AppID, "name": app.Name})
}

package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarkoPoloResearchLab/promorang/internal/oauth"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "pr_oauth_state"
	oauthStateMaxAge = 10 * 60
	authSuccessPath  = "/auth/success"
	authErrorPath    = "/auth/error"
)

func (server *Server) handleGoogleURL(ctx *gin.Context) {
	if server.deps.OAuth == nil {
		server.respondFailure(ctx, errOAuthDisabled)
		return
	}
	state, err := oauth.NewState()
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	http.SetCookie(ctx.Writer, server.stateCookie(state, oauthStateMaxAge))
	respondOK(ctx, gin.H{"url": server.deps.OAuth.AuthURL(state)})
}

func (server *Server) handleGoogleCallback(ctx *gin.Context) {
	if server.deps.OAuth == nil {
		server.redirectAuthError(ctx, "not_configured")
		return
	}
	http.SetCookie(ctx.Writer, server.stateCookie("", -1))
	if providerError := ctx.Query("error"); providerError != "" {
		server.redirectAuthError(ctx, providerError)
		return
	}
	expected, err := ctx.Cookie(oauthStateCookie)
	state := ctx.Query("state")
	if err != nil || expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		server.redirectAuthError(ctx, "invalid_state")
		return
	}

	exchangeCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.cfg.ExternalTimeout)
	defer cancel()
	identity, err := server.deps.OAuth.Exchange(exchangeCtx, ctx.Query("code"))
	if err != nil {
		server.logger.Warn("google exchange failed", zap.Error(err))
		server.redirectAuthError(ctx, "exchange_failed")
		return
	}
	user, err := server.signIn(ctx.Request.Context(), identity)
	if err != nil {
		server.logger.Error("sign-in failed", zap.Error(err))
		server.redirectAuthError(ctx, "sign_in_failed")
		return
	}
	userID, err := economy.NewUserID(user.UserID)
	if err != nil {
		server.redirectAuthError(ctx, "sign_in_failed")
		return
	}
	token, err := server.deps.Sessions.Issue(userID)
	if err != nil {
		server.logger.Error("session issue failed", zap.Error(err))
		server.redirectAuthError(ctx, "sign_in_failed")
		return
	}
	http.SetCookie(ctx.Writer, server.deps.Sessions.Cookie(token, server.cfg.SecureCookies))
	ctx.Redirect(http.StatusFound, server.cfg.FrontendURL+authSuccessPath)
}

// signIn upserts the user; configured admins are promoted, which needs a second upsert when only the user id matches.
func (server *Server) signIn(ctx context.Context, identity economy.Identity) (economy.User, error) {
	identity.Admin = server.isConfiguredAdmin(identity.Subject) || server.isConfiguredAdmin(identity.Email)
	user, err := server.deps.Economy.EnsureUser(ctx, identity)
	if err != nil {
		return economy.User{}, err
	}
	if !user.IsAdmin() && server.isConfiguredAdmin(user.UserID) {
		identity.Admin = true
		return server.deps.Economy.EnsureUser(ctx, identity)
	}
	return user, nil
}

func (server *Server) isConfiguredAdmin(candidate string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if candidate == "" {
		return false
	}
	_, ok := server.admins[candidate]
	return ok
}

func (server *Server) redirectAuthError(ctx *gin.Context, reason string) {
	target := server.cfg.FrontendURL + authErrorPath + "?reason=" + url.QueryEscape(reason)
	ctx.Redirect(http.StatusFound, target)
}

func (server *Server) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   server.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (server *Server) handleSession(ctx *gin.Context) {
	user, err := server.deps.Economy.User(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"user": user})
}

func (server *Server) handleLogout(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, server.deps.Sessions.ClearCookie(server.cfg.SecureCookies))
	respondOK(ctx, gin.H{"logged_out": true})
}

package httpapi

import "github.com/gin-gonic/gin"

type endpointDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Policy      Policy `json:"policy"`
	Description string `json:"description"`
}

type rateLimitDoc struct {
	AuthenticatedPerMinute int    `json:"authenticated_per_minute"`
	AnonymousPerMinute     int    `json:"anonymous_per_minute"`
	ExceededCode           string `json:"exceeded_code"`
}

type sdkDocs struct {
	Endpoints         []endpointDoc     `json:"endpoints"`
	RateLimits        rateLimitDoc      `json:"rate_limits"`
	Envelope          map[string]string `json:"envelope"`
	IdempotencyHeader string            `json:"idempotency_header"`
	APIKeyHeader      string            `json:"api_key_header"`
}

func (server *Server) handleDocs(ctx *gin.Context) {
	endpoints := make([]endpointDoc, 0, len(server.routes))
	for _, registered := range server.routes {
		endpoints = append(endpoints, endpointDoc{
			Method:      registered.Method,
			Path:        registered.Path,
			Policy:      registered.Policy,
			Description: registered.Description,
		})
	}
	respondOK(ctx, sdkDocs{
		Endpoints: endpoints,
		RateLimits: rateLimitDoc{
			AuthenticatedPerMinute: server.cfg.RateLimitAuthenticated,
			AnonymousPerMinute:     server.cfg.RateLimitAnonymous,
			ExceededCode:           codeRateLimited,
		},
		Envelope: map[string]string{
			"success": `{"ok":true,"data":...}`,
			"failure": `{"ok":false,"error":{"code":"...","message":"..."}}`,
		},
		IdempotencyHeader: idempotencyHeader,
		APIKeyHeader:      apiKeyHeader,
	})
}

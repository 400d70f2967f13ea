package httpapi

import "github.com/gin-gonic/gin"

func (server *Server) handleJobs(ctx *gin.Context) {
	states, err := server.deps.Automation.States(ctx.Request.Context())
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"jobs": states})
}

// handleTriggerJob runs a job synchronously; a failing job is still a 200 with status failed.
func (server *Server) handleTriggerJob(ctx *gin.Context) {
	var request struct {
		Job string `json:"job"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	result, err := server.deps.Automation.Run(ctx.Request.Context(), request.Job)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, result)
}

package httpapi

import (
	"github.com/MarkoPoloResearchLab/promorang/internal/catalog"
	"github.com/gin-gonic/gin"
)

func (server *Server) handleListContent(ctx *gin.Context) {
	limit, offset, err := paging(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	contents, err := server.deps.Catalog.ListContent(ctx.Request.Context(), limit, offset)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"content": contents})
}

func (server *Server) handleGetContent(ctx *gin.Context) {
	content, err := server.deps.Catalog.GetContent(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"content": content})
}

func (server *Server) handleCreateContent(ctx *gin.Context) {
	var request struct {
		Title       string `json:"title"`
		Platform    string `json:"platform"`
		URL         string `json:"url"`
		Description string `json:"description"`
		TotalShares int64  `json:"total_shares"`
		SharePrice  int64  `json:"share_price"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	content, err := server.deps.Catalog.CreateContent(ctx.Request.Context(), catalog.NewContent{
		CreatorID:   callerID(ctx),
		Title:       request.Title,
		Platform:    request.Platform,
		URL:         request.URL,
		Description: request.Description,
		TotalShares: request.TotalShares,
		SharePrice:  request.SharePrice,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"content": content})
}

func (server *Server) handleListDrops(ctx *gin.Context) {
	limit, offset, err := paging(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	drops, err := server.deps.Catalog.ListActiveDrops(ctx.Request.Context(), limit, offset)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"drops": drops})
}

func (server *Server) handleCreateDrop(ctx *gin.Context) {
	var request struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		RewardCurrency  string `json:"reward_currency"`
		RewardAmount    int64  `json:"reward_amount"`
		MaxParticipants int64  `json:"max_participants"`
		DeadlineUnixUTC int64  `json:"deadline_unix_utc"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	drop, err := server.deps.Catalog.CreateDrop(ctx.Request.Context(), catalog.NewDrop{
		CreatorID:       callerID(ctx),
		Title:           request.Title,
		Description:     request.Description,
		RewardCurrency:  request.RewardCurrency,
		RewardAmount:    request.RewardAmount,
		MaxParticipants: request.MaxParticipants,
		DeadlineUnixUTC: request.DeadlineUnixUTC,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"drop": drop})
}

func (server *Server) handleListApplications(ctx *gin.Context) {
	applications, err := server.deps.Catalog.ListUserApplications(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"applications": applications})
}

func (server *Server) handleListStakes(ctx *gin.Context) {
	stakes, err := server.deps.Catalog.ListStakes(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"stakes": stakes})
}

func (server *Server) handleChannels(ctx *gin.Context) {
	respondOK(ctx, gin.H{"channels": server.deps.Catalog.Channels()})
}

func (server *Server) handleListProjects(ctx *gin.Context) {
	limit, offset, err := paging(ctx)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	projects, err := server.deps.Catalog.ListProjects(ctx.Request.Context(), limit, offset)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"projects": projects})
}

func (server *Server) handleCreateProject(ctx *gin.Context) {
	var request struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		GoalAmount   int64  `json:"goal_amount"`
		DurationDays int    `json:"duration_days"`
	}
	if err := bindJSON(ctx, &request); err != nil {
		server.respondFailure(ctx, err)
		return
	}
	project, err := server.deps.Catalog.CreateProject(ctx.Request.Context(), catalog.NewProject{
		CreatorID:    callerID(ctx),
		Title:        request.Title,
		Description:  request.Description,
		GoalAmount:   request.GoalAmount,
		DurationDays: request.DurationDays,
	})
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondCreated(ctx, gin.H{"project": project})
}

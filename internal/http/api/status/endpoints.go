// Package status exposes the player's diagnostic surface on the local
// network: what the clock thinks, which window is active, which
// playlist won the cascade, and what the cache holds. Read-only; the
// renderer polls /now-playing, field technicians read /status.
package status

import (
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
)

type StatusController struct {
	session *player.Session
}

func NewStatusController(session *player.Session) *StatusController {
	return &StatusController{session: session}
}

func StatusModule(session *player.Session) api.Module {
	ctl := NewStatusController(session)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/status", api.ResolveEndpoint(ctl.getStatus))
		c.GET("/now-playing", api.ResolveEndpoint(ctl.getNowPlaying))
		c.GET("/cache", api.ResolveEndpoint(ctl.getCache))
	})
}

func (s *StatusController) getStatus(ctx *gin.Context) (any, *api.Error) {
	return s.session.Status(), nil
}

func (s *StatusController) getNowPlaying(ctx *gin.Context) (any, *api.Error) {
	return s.session.NowPlaying(), nil
}

func (s *StatusController) getCache(ctx *gin.Context) (any, *api.Error) {
	return s.session.CacheStats(), nil
}

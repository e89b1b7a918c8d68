// Package http serves the read-only presence views: health, the room index
// and per-room member listings. Nothing here mutates the registry.
package http

import (
	"net/http"

	"github.com/dkeye/CodeSync/internal/app"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/gin-gonic/gin"
)

type PresenceHandlers struct {
	Registry *app.Registry
}

func (h PresenceHandlers) Register(r gin.IRoutes) {
	r.GET("/rooms", h.listRooms)
	r.GET("/rooms/:id/members", h.listMembers)
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h PresenceHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Registry.Rooms()})
}

func (h PresenceHandlers) listMembers(c *gin.Context) {
	members := h.Registry.ListRoom(domain.RoomID(c.Param("id")))
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room has no members"})
		return
	}
	c.JSON(http.StatusOK, members)
}

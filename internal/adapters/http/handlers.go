package http

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

const (
	roomIDCharset  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLen      = 6
	createAttempts = 5
)

type adminHandlers struct {
	rooms *app.RoomRegistry
	ice   ICEServerLister
}

type joinRoomRequest struct {
	RoomID string `json:"roomId"`
}

type roomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId,omitempty"`
	Message string `json:"message"`
}

func genRoomID() domain.RoomID {
	b := make([]byte, roomIDLen)
	for i := range b {
		b[i] = roomIDCharset[rand.IntN(len(roomIDCharset))]
	}
	return domain.RoomID(b)
}

func (h *adminHandlers) health(c *gin.Context) {
	opts := h.rooms.Options()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
		"rooms":     h.rooms.Count(),
		"maxRooms":  opts.MaxRooms,
		"maxUsers":  opts.MaxUsers,
	})
}

func (h *adminHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.List())
}

func (h *adminHandlers) createRoom(c *gin.Context) {
	for range createAttempts {
		room, err := h.rooms.Create(genRoomID())
		switch {
		case err == nil:
			log.Info().Str("module", "adapters.http").Str("room_id", string(room.ID())).Msg("room created")
			c.JSON(http.StatusOK, roomResponse{Success: true, RoomID: string(room.ID()), Message: "Room created successfully"})
			return
		case errors.Is(err, core.ErrCapacityExceeded):
			c.JSON(http.StatusBadRequest, roomResponse{
				Message: fmt.Sprintf("Maximum number of rooms reached (%d max)", h.rooms.Options().MaxRooms),
			})
			return
		case errors.Is(err, core.ErrAlreadyExists):
			continue
		default:
			log.Error().Err(err).Str("module", "adapters.http").Msg("create room failed")
			c.JSON(http.StatusInternalServerError, roomResponse{Message: "Failed to create room"})
			return
		}
	}
	log.Error().Str("module", "adapters.http").Msg("room id space exhausted")
	c.JSON(http.StatusInternalServerError, roomResponse{Message: "Failed to create room"})
}

// joinRoom is a precheck; the actual join happens over the WebSocket.
func (h *adminHandlers) joinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomID == "" {
		c.JSON(http.StatusBadRequest, roomResponse{Message: "Room ID is required"})
		return
	}
	room, ok := h.rooms.Get(domain.RoomID(req.RoomID))
	if !ok {
		c.JSON(http.StatusNotFound, roomResponse{Message: "Room not found"})
		return
	}
	if !room.HasCapacity() {
		c.JSON(http.StatusBadRequest, roomResponse{
			Message: fmt.Sprintf("Room is full (%d max users)", room.MaxUsers()),
		})
		return
	}
	c.JSON(http.StatusOK, roomResponse{Success: true, Message: "Room exists, you can join via WebSocket"})
}

func (h *adminHandlers) routerCapabilities(c *gin.Context) {
	room, ok := h.rooms.Get(domain.RoomID(c.Query("roomId")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	router := room.Router()
	if router == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", router.RTPCapabilities())
}

func (h *adminHandlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, h.ice.ICEServers())
}

package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/services"
)

const streamKeepAlive = 25 * time.Second

// NotificationHandler serves the live notification stream and device token registration.
type NotificationHandler struct {
	hub         *notify.StreamHub
	userService *services.UserService
	keepAlive   time.Duration
}

func NewNotificationHandler(hub *notify.StreamHub, userService *services.UserService) *NotificationHandler {
	return &NotificationHandler{
		hub:         hub,
		userService: userService,
		keepAlive:   streamKeepAlive,
	}
}

// Stream keeps a server-sent events connection open and forwards the caller's notifications.
func (h *NotificationHandler) Stream(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	events, unsubscribe := h.hub.Subscribe(caller.ID)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"user_id": caller.ID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(event.Kind), event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

// RegisterToken attaches a push device token to the caller.
func (h *NotificationHandler) RegisterToken(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type RegisterTokenRequest struct {
		Token    string `json:"token" binding:"required,notblank,max=255"`
		Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
	}

	var req RegisterTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.userService.RegisterPushToken(c.Request.Context(), caller, req.Token, req.Platform)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, token)
}

func (h *NotificationHandler) RemoveToken(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	if err := h.userService.RemovePushToken(c.Request.Context(), caller, c.Param("token")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

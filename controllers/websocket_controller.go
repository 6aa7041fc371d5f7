package controllers

import (
	"accidentwatch/interfaces"
	"accidentwatch/utils"
	"accidentwatch/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub                  *websocket.Hub
	gateway              interfaces.IntakeGateway
	upgrader             *gorilla.Upgrader
	submissionsPerMinute int
}

func NewWebSocketController(hub *websocket.Hub, gateway interfaces.IntakeGateway, allowedOrigins []string, submissionsPerMinute int) *WebSocketController {
	return &WebSocketController{
		hub:                  hub,
		gateway:              gateway,
		upgrader:             websocket.NewUpgrader(allowedOrigins),
		submissionsPerMinute: submissionsPerMinute,
	}
}

// HandleWebSocket upgrades the connection. Every client both submits reports
// and observes the broadcast stream; no authentication is required.
// @Summary WebSocket endpoint
// @Tags WebSocket
// @Success 101 "Switching Protocols"
// @Router /ws [get]
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	conn, err := wsc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logrus.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	client := websocket.NewClient(conn, wsc.hub, wsc.gateway, c.Request, wsc.submissionsPerMinute)

	go client.WritePump()
	go client.ReadPump()
}

func (wsc *WebSocketController) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, "WebSocket stats retrieved successfully", wsc.hub.GetStats())
}

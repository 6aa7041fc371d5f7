// routes/websocket.go
package routes

import (
	"accidentwatch/controllers"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes mounts the report intake and broadcast socket.
func SetupWebSocketRoutes(router *gin.Engine, wsController *controllers.WebSocketController) {
	router.GET("/ws", wsController.HandleWebSocket)
}

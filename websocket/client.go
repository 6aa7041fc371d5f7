package websocket

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Buffer size for direct replies to this client
	sendBufferSize = 64

	historyTimeout = 10 * time.Second
)

// Client is one WebSocket connection. It is both a submitter (newAccident)
// and an observer of the broadcast stream.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	gateway interfaces.IntakeGateway

	// Connection metadata
	connectionID string
	connectedAt  time.Time
	ipAddress    string
	userAgent    string

	// Direct replies to this client; broadcasts arrive on sub.C
	send chan models.WSMessage
	sub  *Subscription

	rateLimiter *utils.RateLimiter

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, hub *Hub, gateway interfaces.IntakeGateway, r *http.Request, submissionsPerMinute int) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		conn:         conn,
		hub:          hub,
		gateway:      gateway,
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		ipAddress:    getClientIP(r),
		userAgent:    r.UserAgent(),
		send:         make(chan models.WSMessage, sendBufferSize),
		rateLimiter:  utils.NewRateLimiter(submissionsPerMinute, time.Minute),
		ctx:          ctx,
		cancel:       cancel,
	}
	client.sub = hub.Subscribe(client.connectionID)

	logrus.Infof("✅ Client connected: %s (%s)", client.connectionID, client.ipAddress)
	return client
}

func (c *Client) ReadPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error for client %s: %v", c.connectionID, err)
			}
			return
		}
		c.handleMessage(messageData)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cleanup()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.send:
			if err := c.write(message); err != nil {
				logrus.Errorf("Write error for client %s: %v", c.connectionID, err)
				return
			}

		case message, ok := <-c.sub.C:
			if !ok {
				// Evicted by the hub or hub shutting down.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				logrus.Errorf("Write error for client %s: %v", c.connectionID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message models.WSMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(message)
}

func (c *Client) handleMessage(messageData []byte) {
	var wsRequest models.WSRequest
	if err := json.Unmarshal(messageData, &wsRequest); err != nil {
		c.sendError(models.WSErrorInvalidMessage, "Invalid message format")
		return
	}

	switch wsRequest.Type {
	case models.WSTypeNewAccident:
		if !c.rateLimiter.Allow() {
			c.sendError(models.WSErrorRateLimit, "Rate limit exceeded")
			return
		}
		c.handleNewAccident(wsRequest)
	case models.WSTypeGetAllAccidents:
		go c.handleGetAllAccidents(wsRequest)
	case models.WSTypePing:
		c.sendResponse(models.WSTypePong, nil, wsRequest.RequestID)
	default:
		c.sendError(models.WSErrorInvalidMessage, "Unknown message type")
	}
}

func (c *Client) handleNewAccident(request models.WSRequest) {
	var submission models.ReportSubmission
	if err := json.Unmarshal(request.Data, &submission); err != nil {
		c.sendResponse(models.WSTypeReportError, models.ReportErrorPayload{
			Success: false,
			Message: "Invalid accident report",
			Code:    utils.ErrCodeValidation,
		}, request.RequestID)
		return
	}

	logrus.Infof("🚨 New accident received from: %s", c.connectionID)

	// Each report runs on its own; a disconnect does not abort it.
	go func() {
		outcome := c.gateway.Submit(context.Background(), submission)
		c.sendResponse(outcome.Type, outcome.Payload(), request.RequestID)
	}()
}

func (c *Client) handleGetAllAccidents(request models.WSRequest) {
	ctx, cancel := context.WithTimeout(c.ctx, historyTimeout)
	defer cancel()

	reports, err := c.gateway.RecentReports(ctx)
	if err != nil {
		logrus.Errorf("❌ Error fetching accidents: %v", err)
		reports = []models.AccidentReport{}
	}
	c.sendResponse(models.WSTypeAllAccidents, reports, request.RequestID)
}

func (c *Client) sendError(code, message string) {
	c.sendResponse(models.WSTypeError, models.WSError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}, "")
}

func (c *Client) sendResponse(msgType string, data interface{}, requestID string) {
	response := models.WSMessage{
		Type:      msgType,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now(),
	}

	select {
	case c.send <- response:
	case <-c.ctx.Done():
	default:
		logrus.Warnf("Send channel full for client %s, dropping %s", c.connectionID, msgType)
	}
}

func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()

		logrus.Infof("❌ Client disconnected: %s (connected %s)", c.connectionID, utils.FormatDuration(time.Since(c.connectedAt)))
	})
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}

package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
)

const (
	// Таймаут записи в сокет
	writeWait = 10 * time.Second

	// Таймаут ожидания pong; ping должен приходить чаще
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 4096

	// Буфер исходящих событий сессии
	sendBufferSize = 256
)

// NotificationDispatcher - операции диспетчера, доступные сессии.
type NotificationDispatcher interface {
	Submit(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error)
	Reroute(hint *dto.RerouteHint) error
	MarkRead(id uint64) (*dto.NotificationResponse, error)
	MarkAllRead(userID string) (int64, error)
}

// Client - одно дуплексное соединение. Эфемерно: создается на connect,
// умирает на disconnect, никогда не сохраняется.
type Client struct {
	// ID - идентичность сессии (uuid), не пользователя
	ID string
	// UserID/Role заполняются при join-room (под мьютексом реестра)
	UserID string
	Role   string

	Conn *websocket.Conn
	Send chan Event

	manager    *Manager
	dispatcher NotificationDispatcher

	sendMu sync.Mutex
	closed bool
}

// deliver кладет событие в буфер сессии без ожидания подтверждения.
// Переполненный буфер означает потерю события для этой сессии.
func (c *Client) deliver(event Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- event:
	default:
		logger.Warn("session send buffer full, event dropped", "session_id", c.ID, "event", event.Event)
	}
}

// closeSend закрывает буфер ровно один раз.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// readPump читает сообщения сессии и раздает их обработчику.
func (c *Client) readPump() {
	defer func() {
		c.manager.unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "session_id", c.ID, "error", err.Error())
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("failed to parse ws message", "session_id", c.ID, "error", err.Error())
			continue
		}

		c.handleMessage(msg)
	}
}

// writePump пишет события из буфера в сокет и поддерживает ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// outboundNotification - полная форма или reroute-подсказка второй фазы.
// Подсказка несет только идентификаторы: payload уже сохранен по HTTP.
type outboundNotification struct {
	dto.SubmitNotificationRequest
	NotificationID uint64 `json:"notificationId"`
}

// Централизованный обработчик протокола сессии
func (c *Client) handleMessage(msg IncomingMessage) {
	switch msg.Action {

	case MsgJoinRoom:
		var req dto.JoinRoomRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.UserID == "" || req.UserRole == "" {
			c.sendError("join-room requires userId and userRole")
			return
		}
		c.manager.Join(req.UserID, req.UserRole, c)

	case MsgSendNotification:
		var payload outboundNotification
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid send-notification payload")
			return
		}
		if payload.NotificationID != 0 {
			if err := c.dispatcher.Reroute(&dto.RerouteHint{NotificationID: payload.NotificationID}); err != nil {
				c.sendError(err.Error())
			}
			return
		}
		if _, err := c.dispatcher.Submit(&payload.SubmitNotificationRequest); err != nil {
			c.sendError(err.Error())
		}

	case MsgSendRoleNotification:
		var payload outboundNotification
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid send-role-notification payload")
			return
		}
		if payload.NotificationID != 0 {
			if err := c.dispatcher.Reroute(&dto.RerouteHint{NotificationID: payload.NotificationID}); err != nil {
				c.sendError(err.Error())
			}
			return
		}
		// Форма для роли: recipientId всегда пуст
		payload.RecipientID = ""
		if _, err := c.dispatcher.Submit(&payload.SubmitNotificationRequest); err != nil {
			c.sendError(err.Error())
		}

	case MsgMarkRead:
		var req dto.MarkReadRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.NotificationID == 0 {
			c.sendError("mark-notification-read requires notificationId")
			return
		}
		if _, err := c.dispatcher.MarkRead(req.NotificationID); err != nil {
			c.sendError(err.Error())
		}

	case MsgMarkAllRead:
		if c.UserID == "" {
			c.sendError("join-room is required before mark-all-notifications-read")
			return
		}
		if _, err := c.dispatcher.MarkAllRead(c.UserID); err != nil {
			c.sendError(err.Error())
		}

	default:
		logger.Warn("unhandled ws action", "session_id", c.ID, "action", msg.Action)
	}
}

func (c *Client) sendError(message string) {
	c.deliver(Event{
		Event: EventNotificationError,
		Data:  dto.NotificationErrorEvent{Message: message},
	})
}

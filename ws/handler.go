package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mektep_backend/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin проверяет CORS-слой вызывающего окружения
	},
}

type Handler struct {
	Manager    *Manager
	Dispatcher NotificationDispatcher
}

func NewHandler(manager *Manager, dispatcher NotificationDispatcher) *Handler {
	return &Handler{
		Manager:    manager,
		Dispatcher: dispatcher,
	}
}

// ServeWS апгрейдит HTTP-запрос до дуплексной сессии.
// userId/userRole в query дают немедленный вход в комнаты; иначе клиент
// обязан прислать join-room первым сообщением.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade error", "error", err.Error())
		return
	}

	client := &Client{
		ID:         uuid.NewString(),
		Conn:       conn,
		Send:       make(chan Event, sendBufferSize),
		manager:    h.Manager,
		dispatcher: h.Dispatcher,
	}

	h.Manager.register <- client

	if userID := c.Query("userId"); userID != "" {
		if role := c.Query("userRole"); role != "" {
			h.Manager.Join(userID, role, client)
		}
	}

	go client.writePump()
	go client.readPump()
}

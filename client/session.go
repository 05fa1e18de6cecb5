package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
	"mektep_backend/ws"
)

// Политика переподключения: автоматическое, ограничено пятью попытками
// с фиксированной секундной паузой; handshake ждем до 20 секунд.
// После пятой неудачи менеджер сам не ретраит - нужен явный Connect.
const (
	maxReconnectAttempts    = 5
	defaultReconnectDelay   = time.Second
	defaultHandshakeTimeout = 20 * time.Second
)

// State - состояние сессии: Disconnected -> Connecting -> Connected,
// из любого состояния обратно в Disconnected при падении транспорта.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Status - опрашиваемый статус соединения.
type Status struct {
	IsConnected       bool `json:"isConnected"`
	ReconnectAttempts int  `json:"reconnectAttempts"`
}

// Handler - подписчик входящих событий сервера.
type Handler func(event string, data json.RawMessage)

// Session - клиентский менеджер дуплексного соединения.
type Session struct {
	httpBase string
	wsURL    string

	httpClient *http.Client
	dialer     *websocket.Dialer

	// пауза между попытками и таймаут handshake вынесены в поля,
	// чтобы тесты не ждали реальных секунд
	reconnectDelay   time.Duration
	handshakeTimeout time.Duration

	mu       sync.Mutex
	state    State
	attempts int
	conn     *websocket.Conn
	userID   string
	role     string
	closing  bool
	handlers []Handler

	// опциональный offline-буфер: недоставленные отправки копятся тут
	queue *OfflineQueue
}

// NewSession создает менеджер для baseURL вида http://host:port.
func NewSession(baseURL string) *Session {
	base := strings.TrimRight(baseURL, "/")
	wsURL := strings.Replace(strings.Replace(base, "https://", "wss://", 1), "http://", "ws://", 1) + "/ws"

	return &Session{
		httpBase:         base,
		wsURL:            wsURL,
		httpClient:       &http.Client{Timeout: 15 * time.Second},
		dialer:           &websocket.Dialer{},
		reconnectDelay:   defaultReconnectDelay,
		handshakeTimeout: defaultHandshakeTimeout,
	}
}

// SetOfflineQueue подключает persisted-очередь для отправок офлайн.
func (s *Session) SetOfflineQueue(q *OfflineQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
}

// OnNotification регистрирует обработчик. Обработчики зовутся синхронно
// в порядке регистрации; паника одного не гасит остальных.
func (s *Session) OnNotification(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Status возвращает {isConnected, reconnectAttempts}.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		IsConnected:       s.state == StateConnected,
		ReconnectAttempts: s.attempts,
	}
}

// Connect устанавливает соединение от имени (userID, role) и входит в
// комнаты. Счетчик попыток сбрасывается в 0.
func (s *Session) Connect(userID, role string) error {
	s.mu.Lock()
	s.userID = userID
	s.role = role
	s.attempts = 0
	s.closing = false
	s.mu.Unlock()

	return s.connectLoop()
}

// connectLoop гоняет ограниченную серию попыток handshake.
func (s *Session) connectLoop() error {
	for {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return appErrors.ErrConnection.WithDetails("session closed")
		}
		s.state = StateConnecting
		userID, role := s.userID, s.role
		s.mu.Unlock()

		conn, err := s.dial()
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.state = StateConnected
			s.attempts = 0
			s.mu.Unlock()

			// Успешный handshake автоматически заявляет комнаты
			s.emit(ws.MsgJoinRoom, dto.JoinRoomRequest{UserID: userID, UserRole: role})
			go s.readLoop(conn)
			return nil
		}

		s.mu.Lock()
		s.attempts++
		attempts := s.attempts
		s.mu.Unlock()
		logger.Warn("handshake failed", "attempt", attempts, "error", err.Error())

		if attempts >= maxReconnectAttempts {
			s.mu.Lock()
			s.state = StateDisconnected
			s.mu.Unlock()
			return appErrors.ErrRetriesExhausted.WithError(err)
		}

		time.Sleep(s.reconnectDelay)
	}
}

func (s *Session) dial() (*websocket.Conn, error) {
	dialer := *s.dialer
	dialer.HandshakeTimeout = s.handshakeTimeout
	conn, _, err := dialer.Dial(s.wsURL, nil)
	return conn, err
}

// readLoop читает события и раздает их обработчикам. Падение транспорта
// переводит сессию в Disconnected и запускает переподключение.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var envelope struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr != nil {
			continue
		}

		s.fanOut(envelope.Event, envelope.Data)
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.state = StateDisconnected
	}
	closing := s.closing
	s.mu.Unlock()

	if !closing {
		// ConnectionError питает машину переподключения, а не вызывающего
		if err := s.connectLoop(); err != nil {
			logger.Warn("reconnect attempts exhausted", "error", err.Error())
		}
	}
}

// fanOut раздает событие всем обработчикам в порядке регистрации;
// паника обработчика ловится и не мешает остальным.
func (s *Session) fanOut(event string, data json.RawMessage) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("notification handler panicked", "event", event, "panic", fmt.Sprint(r))
				}
			}()
			h(event, data)
		}()
	}
}

// Close разрывает соединение без переподключения.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// ---------------- Исходящие операции записи ----------------
// Двухфазная схема: сначала awaited-вызов персистентности по HTTP,
// затем легкая real-time подсказка по сокету - только идентификаторы,
// полный payload второй раз по сети не идет.

// SendNotification отправляет адресное уведомление.
// Офлайн или при ошибке HTTP запрос попадает в offline-очередь (если
// она подключена) для фоновой повторной отправки.
func (s *Session) SendNotification(req dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	record, err := s.persistNotification(req)
	if err != nil {
		s.enqueueOffline(req)
		return nil, err
	}

	s.emit(ws.MsgSendNotification, dto.RerouteHint{
		NotificationID: record.ID,
		RecipientID:    req.RecipientID,
	})
	return record, nil
}

// SendRoleNotification отправляет уведомление всей роли.
func (s *Session) SendRoleNotification(role, message, nType string, data map[string]any) (*dto.NotificationResponse, error) {
	req := dto.SubmitNotificationRequest{
		Role:    role,
		Message: message,
		Type:    nType,
		Data:    data,
	}
	record, err := s.persistNotification(req)
	if err != nil {
		s.enqueueOffline(req)
		return nil, err
	}

	s.emit(ws.MsgSendRoleNotification, dto.RerouteHint{
		NotificationID: record.ID,
		RecipientRole:  role,
	})
	return record, nil
}

// MarkAsRead помечает уведомление прочитанным.
func (s *Session) MarkAsRead(notificationID uint64) error {
	url := fmt.Sprintf("%s/api/notifications/%d/read", s.httpBase, notificationID)
	if err := s.doJSON(http.MethodPut, url, nil, nil); err != nil {
		return err
	}

	s.emit(ws.MsgMarkRead, dto.MarkReadRequest{NotificationID: notificationID})
	return nil
}

// MarkAllAsRead помечает все уведомления текущего пользователя.
func (s *Session) MarkAllAsRead() error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	url := s.httpBase + "/api/notifications/read-all"
	if err := s.doJSON(http.MethodPut, url, dto.MarkAllReadRequest{UserID: userID}, nil); err != nil {
		return err
	}

	s.emit(ws.MsgMarkAllRead, nil)
	return nil
}

// Notifications возвращает последние уведомления текущего пользователя.
func (s *Session) Notifications() (*dto.NotificationListResponse, error) {
	s.mu.Lock()
	userID, role := s.userID, s.role
	s.mu.Unlock()

	var out dto.NotificationListResponse
	url := fmt.Sprintf("%s/api/notifications/user/%s?role=%s", s.httpBase, userID, role)
	if err := s.doJSON(http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) persistNotification(req dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	var record dto.NotificationResponse
	if err := s.doJSON(http.MethodPost, s.httpBase+"/api/notifications/send", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Session) enqueueOffline(req dto.SubmitNotificationRequest) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	if err := queue.Enqueue(req); err != nil {
		logger.WithError(err).Warn("failed to enqueue offline notification")
	}
}

// emit шлет сообщение по сокету без ожидания подтверждения.
// Отсутствие соединения не ошибка: подсказка best-effort, долговечность
// уже обеспечена HTTP-фазой.
func (s *Session) emit(action string, data any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg := ws.IncomingMessage{Action: action, Data: payload}
	if err := conn.WriteJSON(msg); err != nil {
		logger.Warn("failed to emit ws message", "action", action, "error", err.Error())
	}
}

func (s *Session) doJSON(method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return appErrors.ErrConnection.WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return appErrors.ErrPersistence.WithDetails(fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/ws"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// testServer - минимальный сервер: HTTP-ручки + ws endpoint,
// записывающий входящие сообщения сессий.
type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	messages []ws.IncomingMessage
	conns    []*websocket.Conn
	// возвращать 503 на первые N handshake'ов
	failHandshakes int32
}

func newTestServer(t *testing.T, mux *http.ServeMux) *testServer {
	t.Helper()
	ts := &testServer{}
	if mux == nil {
		mux = http.NewServeMux()
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&ts.failHandshakes, -1) >= 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		go func() {
			for {
				var msg ws.IncomingMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				ts.mu.Lock()
				ts.messages = append(ts.messages, msg)
				ts.mu.Unlock()
			}
		}()
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) waitMessage(t *testing.T, action string) ws.IncomingMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		for _, msg := range ts.messages {
			if msg.Action == action {
				ts.mu.Unlock()
				return msg
			}
		}
		ts.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("сервер не получил сообщение %q", action)
	return ws.IncomingMessage{}
}

func (ts *testServer) push(t *testing.T, event ws.Event) {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NotEmpty(t, ts.conns)
	require.NoError(t, ts.conns[len(ts.conns)-1].WriteJSON(event))
}

func newFastSession(ts *testServer) *Session {
	s := NewSession(ts.URL)
	s.reconnectDelay = time.Millisecond
	s.handshakeTimeout = time.Second
	return s
}

func TestConnect_JoinsRoomsAndReportsStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	s := newFastSession(ts)
	defer s.Close()

	require.NoError(t, s.Connect("student-1", "student"))

	status := s.Status()
	assert.True(t, status.IsConnected)
	assert.Zero(t, status.ReconnectAttempts)

	// Успешный handshake сразу заявляет комнаты
	msg := ts.waitMessage(t, ws.MsgJoinRoom)
	var join dto.JoinRoomRequest
	require.NoError(t, json.Unmarshal(msg.Data, &join))
	assert.Equal(t, "student-1", join.UserID)
	assert.Equal(t, "student", join.UserRole)
}

func TestConnect_RetriesAreBounded(t *testing.T) {
	ts := newTestServer(t, nil)
	atomic.StoreInt32(&ts.failHandshakes, 100)
	s := newFastSession(ts)

	err := s.Connect("student-1", "student")
	require.Error(t, err)
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRetriesExhausted.Code, appErr.Code)

	// После исчерпания серия останавливается на пятой попытке
	status := s.Status()
	assert.False(t, status.IsConnected)
	assert.Equal(t, maxReconnectAttempts, status.ReconnectAttempts)
}

func TestConnect_SucceedsAfterTransientFailures(t *testing.T) {
	ts := newTestServer(t, nil)
	atomic.StoreInt32(&ts.failHandshakes, 2)
	s := newFastSession(ts)
	defer s.Close()

	require.NoError(t, s.Connect("student-1", "student"))

	// Счетчик сбрасывается при успешном подключении
	status := s.Status()
	assert.True(t, status.IsConnected)
	assert.Zero(t, status.ReconnectAttempts)
}

func TestConnect_ExplicitRetryResetsCounter(t *testing.T) {
	ts := newTestServer(t, nil)
	atomic.StoreInt32(&ts.failHandshakes, 100)
	s := newFastSession(ts)

	require.Error(t, s.Connect("student-1", "student"))
	require.Equal(t, maxReconnectAttempts, s.Status().ReconnectAttempts)

	// Явный Connect начинает новую серию с нуля
	atomic.StoreInt32(&ts.failHandshakes, 0)
	require.NoError(t, s.Connect("student-1", "student"))
	defer s.Close()
	assert.Zero(t, s.Status().ReconnectAttempts)
}

func TestHandlers_OrderedFanOutWithPanicIsolation(t *testing.T) {
	ts := newTestServer(t, nil)
	s := newFastSession(ts)
	defer s.Close()

	var mu sync.Mutex
	var order []string
	s.OnNotification(func(event string, data json.RawMessage) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		panic("обработчик упал")
	})
	s.OnNotification(func(event string, data json.RawMessage) {
		mu.Lock()
		order = append(order, "second:"+event)
		mu.Unlock()
	})

	require.NoError(t, s.Connect("student-1", "student"))
	ts.waitMessage(t, ws.MsgJoinRoom)
	ts.push(t, ws.Event{Event: ws.EventNewNotification, Data: map[string]any{"id": 1}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Порядок регистрации сохранен, паника первого не погасила второго
	mu.Lock()
	assert.Equal(t, []string{"first", "second:" + ws.EventNewNotification}, order)
	mu.Unlock()
}

func TestSendNotification_TwoPhase(t *testing.T) {
	var persisted dto.SubmitNotificationRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/send", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&persisted))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(dto.NotificationResponse{ID: 5, Message: persisted.Message})
	})
	ts := newTestServer(t, mux)
	s := newFastSession(ts)
	defer s.Close()

	require.NoError(t, s.Connect("teacher-1", "teacher"))
	ts.waitMessage(t, ws.MsgJoinRoom)

	record, err := s.SendNotification(dto.SubmitNotificationRequest{
		RecipientID: "student-1",
		Message:     "Проверь оценку",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), record.ID)

	// Первая фаза: полный payload ушел по HTTP
	assert.Equal(t, "Проверь оценку", persisted.Message)

	// Вторая фаза: по сокету только подсказка с идентификатором
	msg := ts.waitMessage(t, ws.MsgSendNotification)
	var hint dto.RerouteHint
	require.NoError(t, json.Unmarshal(msg.Data, &hint))
	assert.Equal(t, uint64(5), hint.NotificationID)
}

func TestSendNotification_OfflineGoesToQueue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/send", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	ts := newTestServer(t, mux)
	s := newFastSession(ts)

	queue, err := NewOfflineQueue(t.TempDir() + "/queue.json")
	require.NoError(t, err)
	s.SetOfflineQueue(queue)

	_, err = s.SendNotification(dto.SubmitNotificationRequest{
		RecipientID: "student-1",
		Message:     "переживет офлайн",
	})
	require.Error(t, err)

	// Неудачная запись сохранена для фоновой повторной отправки
	require.Equal(t, 1, queue.Len())
	assert.Equal(t, "переживет офлайн", queue.Pending()[0].Request.Message)
}

func TestMarkAsRead_TwoPhase(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	ts := newTestServer(t, mux)
	s := newFastSession(ts)
	defer s.Close()

	require.NoError(t, s.Connect("student-1", "student"))
	ts.waitMessage(t, ws.MsgJoinRoom)

	require.NoError(t, s.MarkAsRead(9))
	assert.Equal(t, "/api/notifications/9/read", gotPath)

	msg := ts.waitMessage(t, ws.MsgMarkRead)
	var req dto.MarkReadRequest
	require.NoError(t, json.Unmarshal(msg.Data, &req))
	assert.Equal(t, uint64(9), req.NotificationID)
}

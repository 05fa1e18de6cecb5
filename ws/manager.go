package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"mektep_backend/internal/logger"
)

// Manager - реестр живых сессий и комнатный роутер.
// Все внутренние карты закрыты одним RWMutex: Join, Leave и Dispatch
// зовутся из независимых горутин соединений и без явной синхронизации
// гонялись бы между собой. Состояние реестра - одноразовый кэш,
// безопасно теряемый при рестарте: клиенты заново входят в комнаты.
type Manager struct {
	mu sync.RWMutex
	// все живые сессии (для глобальных рассылок и /health)
	clients map[*Client]bool
	// ключ комнаты -> множество сессий; комнаты user:<id> и role:<role>
	rooms map[string]map[*Client]bool
	// userID -> отслеживаемая сессия (последняя активная выигрывает)
	userSessions map[string]*Client

	register   chan *Client
	unregister chan *Client

	startedAt time.Time
}

func NewManager() *Manager {
	return &Manager{
		clients:      make(map[*Client]bool),
		rooms:        make(map[string]map[*Client]bool),
		userSessions: make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		startedAt:    time.Now(),
	}
}

// Run обслуживает жизненный цикл соединений до отмены контекста.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("session registry stopped")
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.mu.Unlock()
			logger.Info("session registered", "session_id", client.ID, "total", total)

		case client := <-m.unregister:
			m.removeClient(client)
		}
	}
}

// Join регистрирует сессию как отслеживаемую для userID и вводит ее в
// комнаты пользователя и роли. Уже отслеживаемая сессия пользователя
// замещается (last-active-wins), но доставка в комнаты от этой одиночной
// карты не зависит: в комнате может жить несколько соединений одного
// пользователя (несколько вкладок).
func (m *Manager) Join(userID, role string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client.UserID = userID
	client.Role = role

	m.joinRoom(userRoom(userID), client)
	m.joinRoom(roleRoom(role), client)
	m.userSessions[userID] = client

	logger.Info("session joined rooms", "session_id", client.ID, "user_id", userID, "role", role)
}

// Leave выводит сессию из ее комнат.
// Обязательный инвариант корректности: запись userID -> сессия
// вычищается только если она все еще указывает на эту сессию. Иначе
// запоздавший disconnect старого транспорта выселил бы сессию, которая
// успела перезайти (гонка reconnect/disconnect).
func (m *Manager) Leave(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(client)
}

func (m *Manager) leaveLocked(client *Client) {
	if client.UserID == "" {
		return
	}

	m.leaveRoom(userRoom(client.UserID), client)
	m.leaveRoom(roleRoom(client.Role), client)

	if tracked, ok := m.userSessions[client.UserID]; ok && tracked == client {
		delete(m.userSessions, client.UserID)
	}
}

// Dispatch доставляет событие всем сессиям комнаты-цели.
// Fire-and-forget: подтверждения не ждем, переполненный буфер сессии
// означает потерю события для нее (компенсируется листингом).
func (m *Manager) Dispatch(target Target, event Event) {
	m.mu.RLock()
	members := m.rooms[target.room()]
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		client.deliver(event)
	}
}

// Broadcast доставляет событие всем живым сессиям.
func (m *Manager) Broadcast(event Event) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		client.deliver(event)
	}
}

// IsUserOnline сообщает, есть ли у пользователя хоть одна живая сессия.
func (m *Manager) IsUserOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[userRoom(userID)]) > 0
}

// ClientCount возвращает количество подключенных сессий.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CountsByRole возвращает число сессий в каждой комнате роли.
func (m *Manager) CountsByRole() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for room, members := range m.rooms {
		if role, ok := strings.CutPrefix(room, "role:"); ok && len(members) > 0 {
			counts[role] = len(members)
		}
	}
	return counts
}

// Uptime - время жизни реестра (для /health).
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

func (m *Manager) joinRoom(room string, client *Client) {
	members := m.rooms[room]
	if members == nil {
		members = make(map[*Client]bool)
		m.rooms[room] = members
	}
	members[client] = true
}

func (m *Manager) leaveRoom(room string, client *Client) {
	members := m.rooms[room]
	if members == nil {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
}

func (m *Manager) removeClient(client *Client) {
	m.mu.Lock()
	if _, ok := m.clients[client]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, client)
	m.leaveLocked(client)
	client.closeSend()
	total := len(m.clients)
	m.mu.Unlock()

	logger.Info("session unregistered", "session_id", client.ID, "total", total)
}

package client

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/models"
)

const defaultSyncInterval = 30 * time.Second

// PushPayload - полезная нагрузка push-сообщения от сервера.
type PushPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Type  string         `json:"type"`
	Data  map[string]any `json:"data,omitempty"`
}

// RenderedNotification - системное уведомление, готовое к показу.
// RequireInteraction оставляет уведомление на экране до явного
// действия пользователя.
type RenderedNotification struct {
	Tag                string
	Title              string
	Body               string
	Type               string
	RequireInteraction bool
	Data               map[string]any
}

// Notifier показывает и закрывает системные уведомления.
type Notifier interface {
	Show(n RenderedNotification) error
	Dismiss(tag string)
}

// PageNavigator управляет открытыми страницами приложения при клике
// по уведомлению.
type PageNavigator interface {
	// FocusExisting фокусирует уже открытую страницу и передает ей
	// payload; false - открытых страниц нет.
	FocusExisting(payload PushPayload) bool
	// Open открывает новую страницу приложения.
	Open(payload PushPayload) error
}

// Agent - фоновый агент клиента: установка и активация версии,
// обработка push-сообщений, периодический слив offline-очереди.
type Agent struct {
	version  string
	stateDir string
	assets   []string

	fetchAsset func(name string) ([]byte, error)
	notifier   Notifier
	pages      PageNavigator
	queue      *OfflineQueue
	send       func(dto.SubmitNotificationRequest) error

	syncInterval time.Duration
}

// AgentConfig - зависимости агента.
type AgentConfig struct {
	Version      string
	StateDir     string
	Assets       []string
	FetchAsset   func(name string) ([]byte, error)
	Notifier     Notifier
	Pages        PageNavigator
	Queue        *OfflineQueue
	Send         func(dto.SubmitNotificationRequest) error
	SyncInterval time.Duration
}

func NewAgent(cfg AgentConfig) *Agent {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Agent{
		version:      cfg.Version,
		stateDir:     cfg.StateDir,
		assets:       cfg.Assets,
		fetchAsset:   cfg.FetchAsset,
		notifier:     cfg.Notifier,
		pages:        cfg.Pages,
		queue:        cfg.Queue,
		send:         cfg.Send,
		syncInterval: interval,
	}
}

// versionDir - каталог состояния текущей версии агента.
func (a *Agent) versionDir() string {
	return filepath.Join(a.stateDir, a.version)
}

// Install готовит каталог версии и прекэширует фиксированный список
// ассетов. Ошибка любого ассета валит установку целиком: наполовину
// заполненный кэш хуже отсутствующего.
func (a *Agent) Install() error {
	dir := a.versionDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErrors.ErrSync.WithError(err)
	}

	for _, name := range a.assets {
		raw, err := a.fetchAsset(name)
		if err != nil {
			return appErrors.ErrSync.WithError(err).WithDetails("precache failed: " + name)
		}
		target := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(target, raw, 0o644); err != nil {
			return appErrors.ErrSync.WithError(err)
		}
	}

	logger.Info("agent installed", "version", a.version, "assets", len(a.assets))
	return nil
}

// Activate удаляет каталоги устаревших версий, оставляя только текущую.
func (a *Agent) Activate() error {
	entries, err := os.ReadDir(a.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return appErrors.ErrSync.WithError(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == a.version {
			continue
		}
		stale := filepath.Join(a.stateDir, entry.Name())
		if err := os.RemoveAll(stale); err != nil {
			logger.WithError(err).Warn("failed to remove stale agent version", "dir", stale)
			continue
		}
		logger.Info("removed stale agent version", "version", entry.Name())
	}
	return nil
}

// CachedAsset читает прекэшированный ассет текущей версии.
func (a *Agent) CachedAsset(name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(a.versionDir(), filepath.Base(name)))
	if err != nil {
		return nil, appErrors.ErrSync.WithError(err)
	}
	return raw, nil
}

// HandlePush разбирает push-сообщение и показывает системное
// уведомление. Оценки и объявления остаются на экране до действия
// пользователя.
func (a *Agent) HandlePush(raw []byte) error {
	var payload PushPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return appErrors.ErrDelivery.WithError(err)
	}
	if payload.Title == "" {
		payload.Title = "Mektep"
	}

	sticky := payload.Type == models.NotificationTypeGrade ||
		payload.Type == models.NotificationTypeAnnouncement

	return a.notifier.Show(RenderedNotification{
		Tag:                uuid.New().String(),
		Title:              payload.Title,
		Body:               payload.Body,
		Type:               payload.Type,
		RequireInteraction: sticky,
		Data:               payload.Data,
	})
}

// HandleNotificationClick закрывает уведомление и переводит
// пользователя в приложение: фокус открытой страницы, иначе новая.
func (a *Agent) HandleNotificationClick(n RenderedNotification) error {
	a.notifier.Dismiss(n.Tag)

	payload := PushPayload{Title: n.Title, Body: n.Body, Type: n.Type, Data: n.Data}
	if a.pages.FocusExisting(payload) {
		return nil
	}
	return a.pages.Open(payload)
}

// Flush сливает offline-очередь один раз.
func (a *Agent) Flush() (int, error) {
	if a.queue == nil || a.send == nil {
		return 0, nil
	}
	return a.queue.Flush(a.send)
}

// RunSync периодически сливает offline-очередь до отмены контекста.
// Ошибки синка логируются и не останавливают цикл.
func (a *Agent) RunSync(ctx context.Context) {
	ticker := time.NewTicker(a.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := a.Flush()
			if err != nil {
				logger.WithError(err).Warn("background sync failed")
			}
			if delivered > 0 {
				logger.Info("background sync delivered queued notifications", "count", delivered)
			}
		}
	}
}

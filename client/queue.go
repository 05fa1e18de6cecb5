package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
)

// Бэкофф повторной отправки: 1s, 2s, 4s ... с потолком в пять минут.
const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 5 * time.Minute
)

// QueuedNotification - запись store-and-forward очереди.
type QueuedNotification struct {
	ID          string                        `json:"id"`
	Request     dto.SubmitNotificationRequest `json:"request"`
	EnqueuedAt  time.Time                     `json:"enqueuedAt"`
	Attempts    int                           `json:"attempts"`
	NextAttempt time.Time                     `json:"nextAttempt"`
}

// OfflineQueue - persisted очередь недоставленных уведомлений.
// Каждая мутация сразу пишется на диск, так что записи переживают
// перезапуск процесса.
type OfflineQueue struct {
	path string

	mu      sync.Mutex
	entries []QueuedNotification
}

// NewOfflineQueue открывает очередь по пути path, поднимая записи с
// диска. Поврежденный файл откладывается в сторону и очередь стартует
// пустой - незапускаемый клиент хуже потерянного буфера.
func NewOfflineQueue(path string) (*OfflineQueue, error) {
	q := &OfflineQueue{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return q, nil
		}
		return nil, appErrors.ErrSync.WithError(err)
	}

	if err := json.Unmarshal(raw, &q.entries); err != nil {
		quarantine := path + ".corrupt"
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			logger.WithError(renameErr).Warn("failed to quarantine corrupt offline queue")
		}
		logger.WithError(err).Warn("offline queue file corrupt, starting empty", "quarantine", quarantine)
		q.entries = nil
	}
	return q, nil
}

// Enqueue добавляет запрос в хвост очереди и фиксирует ее на диске.
func (q *OfflineQueue) Enqueue(req dto.SubmitNotificationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.entries = append(q.entries, QueuedNotification{
		ID:          uuid.New().String(),
		Request:     req,
		EnqueuedAt:  now,
		Attempts:    0,
		NextAttempt: now,
	})
	return q.saveLocked()
}

// Len возвращает число ожидающих записей.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending возвращает копию очереди для инспекции.
func (q *OfflineQueue) Pending() []QueuedNotification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedNotification, len(q.entries))
	copy(out, q.entries)
	return out
}

// Flush пытается доставить записи, у которых подошло время попытки,
// в порядке постановки. Успешная запись удаляется; неуспешная получает
// увеличенную задержку и остается. Возвращает число доставленных.
func (q *OfflineQueue) Flush(send func(dto.SubmitNotificationRequest) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	delivered := 0
	var firstErr error
	remaining := q.entries[:0]

	for _, entry := range q.entries {
		if entry.NextAttempt.After(now) {
			remaining = append(remaining, entry)
			continue
		}

		if err := send(entry.Request); err != nil {
			entry.Attempts++
			entry.NextAttempt = now.Add(retryDelay(entry.Attempts))
			remaining = append(remaining, entry)
			if firstErr == nil {
				firstErr = err
			}
			logger.WithError(err).Warn("offline queue delivery failed",
				"entry_id", entry.ID, "attempts", entry.Attempts)
			continue
		}
		delivered++
	}

	q.entries = remaining
	if err := q.saveLocked(); err != nil {
		return delivered, err
	}
	if firstErr != nil {
		return delivered, appErrors.ErrSync.WithError(firstErr)
	}
	return delivered, nil
}

// retryDelay считает экспоненциальную задержку для n-й неудачи.
func retryDelay(attempts int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// saveLocked пишет очередь на диск атомарно через временный файл.
func (q *OfflineQueue) saveLocked() error {
	raw, err := json.MarshalIndent(q.entries, "", "  ")
	if err != nil {
		return appErrors.ErrSync.WithError(err)
	}

	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return appErrors.ErrSync.WithError(err)
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return appErrors.ErrSync.WithError(err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return appErrors.ErrSync.WithError(err)
	}
	return nil
}

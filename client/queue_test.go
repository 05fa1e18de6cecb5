package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mektep_backend/internal/dto"
)

func queuePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "offline-queue.json")
}

func enqueueMessage(t *testing.T, q *OfflineQueue, message string) {
	t.Helper()
	require.NoError(t, q.Enqueue(dto.SubmitNotificationRequest{
		RecipientID: "student-1",
		Message:     message,
	}))
}

func TestQueue_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := queuePath(t)
	q, err := NewOfflineQueue(path)
	require.NoError(t, err)
	enqueueMessage(t, q, "первое")
	enqueueMessage(t, q, "второе")

	// Новый процесс поднимает очередь с диска
	reopened, err := NewOfflineQueue(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())

	pending := reopened.Pending()
	assert.Equal(t, "первое", pending[0].Request.Message)
	assert.Equal(t, "второе", pending[1].Request.Message)
	assert.NotEmpty(t, pending[0].ID)
}

func TestQueue_FlushDeliversInOrder(t *testing.T) {
	t.Parallel()

	q, err := NewOfflineQueue(queuePath(t))
	require.NoError(t, err)
	enqueueMessage(t, q, "первое")
	enqueueMessage(t, q, "второе")

	var sent []string
	delivered, err := q.Flush(func(req dto.SubmitNotificationRequest) error {
		sent = append(sent, req.Message)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"первое", "второе"}, sent)
	assert.Zero(t, q.Len())
}

func TestQueue_FailedDeliveryBacksOff(t *testing.T) {
	t.Parallel()

	q, err := NewOfflineQueue(queuePath(t))
	require.NoError(t, err)
	enqueueMessage(t, q, "упрямое")

	delivered, err := q.Flush(func(dto.SubmitNotificationRequest) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.Zero(t, delivered)
	require.Equal(t, 1, q.Len())

	entry := q.Pending()[0]
	assert.Equal(t, 1, entry.Attempts)
	assert.True(t, entry.NextAttempt.After(time.Now()), "следующая попытка должна быть отложена")

	// Пока бэкофф не истек, повторный Flush запись не трогает
	attempts := 0
	_, err = q.Flush(func(dto.SubmitNotificationRequest) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_CorruptFileQuarantined(t *testing.T) {
	t.Parallel()

	path := queuePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{не json"), 0o644))

	// Поврежденный файл не валит клиента: очередь стартует пустой
	q, err := NewOfflineQueue(path)
	require.NoError(t, err)
	assert.Zero(t, q.Len())

	_, statErr := os.Stat(path + ".corrupt")
	assert.NoError(t, statErr, "поврежденный файл должен быть отложен в сторону")
}

func TestRetryDelay_Capped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, retryDelay(1))
	assert.Equal(t, 2*time.Second, retryDelay(2))
	assert.Equal(t, 8*time.Second, retryDelay(4))
	assert.Equal(t, maxRetryDelay, retryDelay(30))
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/validator"
	"mektep_backend/ws"
)

// fakeNotificationService записывает вызовы вместо работы с БД.
type fakeNotificationService struct {
	persisted   []dto.SubmitNotificationRequest
	submitted   []dto.SubmitNotificationRequest
	markedAll   []string
	persistErr  error
	markReadErr error
}

func (s *fakeNotificationService) Submit(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	s.submitted = append(s.submitted, *req)
	return &dto.NotificationResponse{ID: 1, Message: req.Message}, nil
}

func (s *fakeNotificationService) Persist(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	if s.persistErr != nil {
		return nil, s.persistErr
	}
	s.persisted = append(s.persisted, *req)
	return &dto.NotificationResponse{ID: uint64(len(s.persisted)), Message: req.Message}, nil
}

func (s *fakeNotificationService) Reroute(hint *dto.RerouteHint) error { return nil }

func (s *fakeNotificationService) MarkRead(id uint64) (*dto.NotificationResponse, error) {
	if s.markReadErr != nil {
		return nil, s.markReadErr
	}
	return &dto.NotificationResponse{ID: id, IsRead: true}, nil
}

func (s *fakeNotificationService) MarkAllRead(userID string) (int64, error) {
	s.markedAll = append(s.markedAll, userID)
	return 2, nil
}

func (s *fakeNotificationService) RecipientNotifications(userID, role string) (*dto.NotificationListResponse, error) {
	return &dto.NotificationListResponse{
		Notifications: []dto.NotificationResponse{{ID: 1, Message: "тест"}},
		UnreadCount:   1,
	}, nil
}

func newNotificationRouter(svc *fakeNotificationService) (*gin.Engine, *ws.Manager) {
	gin.SetMode(gin.TestMode)
	registry := ws.NewManager()
	handler := NewNotificationHandler(NewBaseHandler(validator.New()), svc, registry)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/api"))
	return r, registry
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSendNotification_PersistsWithoutRouting(t *testing.T) {
	svc := &fakeNotificationService{}
	r, _ := newNotificationRouter(svc)

	rec := doJSON(t, r, http.MethodPost, "/api/notifications/send", dto.SubmitNotificationRequest{
		RecipientID: "student-1",
		Message:     "Домашнее задание",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	// HTTP-фаза только сохраняет; роутинг придет подсказкой по сокету
	require.Len(t, svc.persisted, 1)
	assert.Empty(t, svc.submitted)

	var resp dto.NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotZero(t, resp.ID)
}

func TestSendNotification_ValidationError(t *testing.T) {
	svc := &fakeNotificationService{}
	r, _ := newNotificationRouter(svc)

	// message обязателен
	rec := doJSON(t, r, http.MethodPost, "/api/notifications/send", map[string]any{
		"recipientId": "student-1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.persisted)
}

func TestSendNotification_ServiceErrorMapsToHTTPCode(t *testing.T) {
	svc := &fakeNotificationService{persistErr: appErrors.ErrInvalidRecipient}
	r, _ := newNotificationRouter(svc)

	rec := doJSON(t, r, http.MethodPost, "/api/notifications/send", dto.SubmitNotificationRequest{
		RecipientID: "student-1",
		Role:        "teacher",
		Message:     "два адресата",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(appErrors.ErrInvalidRecipient.Code))
}

func TestGetUserNotifications(t *testing.T) {
	r, _ := newNotificationRouter(&fakeNotificationService{})

	rec := doJSON(t, r, http.MethodGet, "/api/notifications/user/student-1?role=student", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.NotificationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Notifications, 1)
	assert.Equal(t, int64(1), resp.UnreadCount)
}

func TestMarkAsRead(t *testing.T) {
	r, _ := newNotificationRouter(&fakeNotificationService{})

	rec := doJSON(t, r, http.MethodPut, "/api/notifications/7/read", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marked as read")
}

func TestMarkAsRead_InvalidID(t *testing.T) {
	r, _ := newNotificationRouter(&fakeNotificationService{})

	rec := doJSON(t, r, http.MethodPut, "/api/notifications/abc/read", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAsRead_NotFound(t *testing.T) {
	svc := &fakeNotificationService{markReadErr: appErrors.ErrNotificationNotFound}
	r, _ := newNotificationRouter(svc)

	rec := doJSON(t, r, http.MethodPut, "/api/notifications/7/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllAsRead(t *testing.T) {
	svc := &fakeNotificationService{}
	r, _ := newNotificationRouter(svc)

	rec := doJSON(t, r, http.MethodPut, "/api/notifications/read-all", dto.MarkAllReadRequest{UserID: "student-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"student-1"}, svc.markedAll)

	// userId обязателен
	rec = doJSON(t, r, http.MethodPut, "/api/notifications/read-all", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus(t *testing.T) {
	r, _ := newNotificationRouter(&fakeNotificationService{})

	rec := doJSON(t, r, http.MethodGet, "/api/notifications/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Connections int            `json:"connections"`
		ByRole      map[string]int `json:"byRole"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Connections)
}

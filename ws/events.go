package ws

import "encoding/json"

// Сообщения клиент -> сервер
const (
	MsgJoinRoom             = "join-room"
	MsgSendNotification     = "send-notification"
	MsgSendRoleNotification = "send-role-notification"
	MsgMarkRead             = "mark-notification-read"
	MsgMarkAllRead          = "mark-all-notifications-read"
)

// События сервер -> клиент
const (
	EventNewNotification     = "new-notification"
	EventNotificationUpdated = "notification-updated"
	EventNotificationError   = "notification-error"
	EventAllRead             = "all-notifications-read"
)

// IncomingMessage - конверт входящего сообщения сессии.
type IncomingMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Event - конверт исходящего события.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Target - адрес доставки: либо комната одного пользователя, либо
// комната целой роли.
type Target struct {
	userID string
	role   string
}

// Direct адресует комнату конкретного пользователя.
func Direct(userID string) Target {
	return Target{userID: userID}
}

// RoleBroadcast адресует комнату роли целиком.
func RoleBroadcast(role string) Target {
	return Target{role: role}
}

// room возвращает ключ комнаты для цели.
func (t Target) room() string {
	if t.userID != "" {
		return userRoom(t.userID)
	}
	return roleRoom(t.role)
}

func userRoom(userID string) string { return "user:" + userID }
func roleRoom(role string) string   { return "role:" + role }

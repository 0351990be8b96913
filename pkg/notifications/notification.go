package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the notification category.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is a single toast shown to one user.
type Notification struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	Type        Type           `json:"type"`
	Title       string         `json:"title,omitempty"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Dismissible bool           `json:"dismissible"`
	CreatedAt   time.Time      `json:"created_at"`
}

// New builds a dismissible notification with a fresh ID.
func New(typ Type, userID, message string) Notification {
	return Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Message:     message,
		Dismissible: true,
		CreatedAt:   time.Now().UTC(),
	}
}

func Success(userID, message string) Notification { return New(TypeSuccess, userID, message) }
func Error(userID, message string) Notification   { return New(TypeError, userID, message) }
func Info(userID, message string) Notification    { return New(TypeInfo, userID, message) }
func Warning(userID, message string) Notification { return New(TypeWarning, userID, message) }

// With returns a copy of n carrying an extra data field.
func (n Notification) With(key string, value any) Notification {
	data := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[key] = value
	n.Data = data
	return n
}

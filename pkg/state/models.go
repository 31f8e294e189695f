package state

import (
	"time"
)

type Flow string

const (
	FlowRegistration Flow = "registration"
	FlowJobPosting   Flow = "job_posting"
)

// Session is the in-progress conversation of one chat.
type Session struct {
	ChatID    int64             `json:"chat_id"`
	UserID    int64             `json:"user_id"`
	UserName  string            `json:"user_name,omitempty"`
	Flow      Flow              `json:"flow"`
	State     string            `json:"state"`
	Fields    map[string]string `json:"fields"`
	Role      string            `json:"role,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewSession(chatID, userID int64, userName string, flow Flow) *Session {
	return &Session{
		ChatID:   chatID,
		UserID:   userID,
		UserName: userName,
		Flow:     flow,
		Fields:   make(map[string]string),
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}

func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !s.UpdatedAt.IsZero() && now.Sub(s.UpdatedAt) > ttl
}

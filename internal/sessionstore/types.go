package sessionstore

import "time"

// Session status constants mirror the lifecycle in spec.md §3: a
// session is created pending, claimed once exactly one WebSocket
// admits against it, then completed when that connection closes.
const (
	StatusPending   = "pending"
	StatusClaimed   = "claimed"
	StatusCompleted = "completed"
)

// Session is the persisted record backing the §4.8 REST surface
// (`POST /v1/sessions`, `GET /v1/sessions/{id}/summary`). Identified by
// its UUID per §3's Session definition.
type Session struct {
	SessionID   string    `json:"sessionId" gorm:"column:session_id;type:varchar(36);primaryKey"`
	Status      string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	UtteranceN  int       `json:"utteranceCount" gorm:"column:utterance_count;not null;default:0"`
	CreatedDate time.Time `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;default:NOW()"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"column:updated_date;type:timestamp"`
}

func (Session) TableName() string {
	return "mesh_sessions"
}

// IsPending reports whether the session has not yet been claimed by a
// WebSocket connection.
func (s *Session) IsPending() bool {
	return s.Status == StatusPending
}

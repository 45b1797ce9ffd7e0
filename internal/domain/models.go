// Package domain defines the persistence models for device sessions and the
// chat records they own. These types are mapped with GORM and form the core
// data layer of the FAQ chatbot.
package domain

import (
	"time"
)

// Session modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// SenderBot is the sender of every bot-authored record. SenderUser is the
// sender of user records in single-user sessions.
const (
	SenderBot  = "bot"
	SenderUser = "user"
)

// Session is the state a single device keeps about its conversation: the
// active username, the theme flag, and where the current message view begins.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Mode: "single" or "multi" (fixed at creation).
//   - Username: active user in multi mode; empty while awaiting a name.
//   - DarkMode: UI theme flag.
//   - ViewSince: sequence number of the first history record in the view.
//     Clearing the view moves it past the last record.
//   - Generation: bumped whenever pending bot replies must be invalidated.
type Session struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Mode       string    `json:"mode"        gorm:"type:varchar(8);not null;default:'single';check:mode IN ('single','multi')"`
	Username   string    `json:"username"    gorm:"type:varchar(255);not null;default:''"`
	DarkMode   bool      `json:"dark_mode"   gorm:"not null;default:false"`
	ViewSince  int64     `json:"-"           gorm:"not null;default:0"`
	Generation int64     `json:"-"           gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// AwaitingName reports whether a multi-user session still needs a name claim.
func (s Session) AwaitingName() bool {
	return s.Mode == ModeMulti && s.Username == ""
}

// Message is one record of a session's chat history. Records are immutable
// once created except for Reaction.
//
// Fields:
//   - ID: UUID assigned at creation; used to address a record unambiguously.
//   - SessionID: owning session (indexed together with Seq).
//   - Seq: 1-based insertion order within the session.
//   - Sender: "bot", "user", or the username in multi mode.
//   - Text: message body as typed.
//   - Timestamp: wall-clock time of creation as displayed ("3:04:05 PM").
//   - Reaction: optional emoji; last write wins.
//   - ForUser: recipient of a bot record in multi mode.
type Message struct {
	ID        string    `json:"id"                gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"-"                 gorm:"type:char(36);not null;uniqueIndex:ux_session_seq,priority:1"`
	Seq       int64     `json:"-"                 gorm:"not null;uniqueIndex:ux_session_seq,priority:2"`
	Sender    string    `json:"sender"            gorm:"type:varchar(255);not null;index"`
	Text      string    `json:"text"              gorm:"type:text;not null"`
	Timestamp string    `json:"timestamp"         gorm:"type:varchar(32);not null"`
	Reaction  *string   `json:"reaction"          gorm:"type:varchar(64)"`
	ForUser   *string   `json:"forUser,omitempty" gorm:"type:varchar(255);index"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Session is the owning device session. Records are cascade-deleted
	// if the session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// SameRecord reports structural equality on timestamp, sender and text, the
// identity a browser snapshot uses for its records.
func (m Message) SameRecord(o Message) bool {
	return m.Timestamp == o.Timestamp && m.Sender == o.Sender && m.Text == o.Text
}

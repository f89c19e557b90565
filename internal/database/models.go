package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MatchStatus enumerates the states of the match lifecycle.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusMutual    MatchStatus = "mutual"
	MatchStatusPassed    MatchStatus = "passed"
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusExpired   MatchStatus = "expired"
)

// MessageType enumerates the message payload kinds.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVoice MessageType = "voice"
	MessageTypeVideo MessageType = "video"
)

// User is owned by the external user-management service; this core only
// reads identity, display fields and the active flag.
type User struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Bio       string    `json:"bio" db:"bio"`
	City      string    `json:"city" db:"city"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScentProfile holds a user's self-reported scent and preference data.
type ScentProfile struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	ScentNotes     StringList `json:"scent_notes" db:"scent_notes"`
	Intensity      int        `json:"intensity" db:"intensity"`
	PreferredNotes StringList `json:"preferred_notes" db:"preferred_notes"`
	AvoidNotes     StringList `json:"avoid_notes" db:"avoid_notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsComplete reports whether the profile carries enough data for scoring.
func (p *ScentProfile) IsComplete() bool {
	return len(p.ScentNotes) > 0 && len(p.PreferredNotes) > 0
}

// StringList is a JSON-encoded list of note labels.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

// Contains reports whether note is present in the list.
func (l StringList) Contains(note string) bool {
	for _, n := range l {
		if n == note {
			return true
		}
	}
	return false
}

// Match is the single record governing the relationship between an
// unordered pair of users. User1ID always sorts before User2ID so that
// (A,B) and (B,A) key the same row.
type Match struct {
	ID                 string         `json:"id" db:"id"`
	User1ID            string         `json:"user1_id" db:"user1_id"`
	User2ID            string         `json:"user2_id" db:"user2_id"`
	Status             MatchStatus    `json:"status" db:"status"`
	CompatibilityScore int            `json:"compatibility_score" db:"compatibility_score"`
	ScoreBreakdown     ScoreBreakdown `json:"score_breakdown" db:"score_breakdown"`
	User1Liked         bool           `json:"user1_liked" db:"user1_liked"`
	User2Liked         bool           `json:"user2_liked" db:"user2_liked"`
	MatchedAt          *time.Time     `json:"matched_at" db:"matched_at"`
	ExpiresAt          *time.Time     `json:"expires_at" db:"expires_at"`
	LastActivityAt     *time.Time     `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userID is one of the two sides.
func (m *Match) HasParticipant(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// OtherParticipant returns the participant opposite userID.
func (m *Match) OtherParticipant(userID string) string {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// LikedBy reports whether userID has already liked within this match.
func (m *Match) LikedBy(userID string) bool {
	if m.User1ID == userID {
		return m.User1Liked
	}
	return m.User2Liked
}

// ScoreBreakdown records the matched-note lists per direction so a score
// can be explained to either participant.
type ScoreBreakdown struct {
	MatchedForUser1 []string `json:"matched_for_user1"`
	MatchedForUser2 []string `json:"matched_for_user2"`
	Awarded         int      `json:"awarded"`
	Possible        int      `json:"possible"`
}

func (b ScoreBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *ScoreBreakdown) Scan(value interface{}) error {
	if value == nil {
		*b = ScoreBreakdown{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("cannot scan %T into ScoreBreakdown", value)
	}
}

// Message belongs to exactly one match. Content is stored only as an
// encrypted bundle; rows are never mutated after insert except to set
// ReadAt.
type Message struct {
	ID          string           `json:"id" db:"id"`
	MatchID     string           `json:"match_id" db:"match_id"`
	SenderID    string           `json:"sender_id" db:"sender_id"`
	ReceiverID  string           `json:"receiver_id" db:"receiver_id"`
	Content     EncryptedPayload `json:"-" db:"content"`
	MessageType MessageType      `json:"message_type" db:"message_type"`
	ReadAt      *time.Time       `json:"read_at" db:"read_at"`
	SentAt      time.Time        `json:"sent_at" db:"sent_at"`
}

// EncryptedPayload is the opaque three-part bundle produced by authenticated
// encryption. All three fields are persisted together; splitting them would
// make tampering undetectable.
type EncryptedPayload struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
}

func (p EncryptedPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *EncryptedPayload) Scan(value interface{}) error {
	if value == nil {
		*p = EncryptedPayload{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into EncryptedPayload", value)
	}
}

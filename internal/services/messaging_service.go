package services

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/scentmatch/scentmatch/internal/crypto"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/notification"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

// maxMessageLength bounds a single message's plaintext.
const maxMessageLength = 1000

// defaultMessageLimit is used when the caller does not bound a listing.
const defaultMessageLimit = 50

// MessageView is a message as seen by one participant: decrypted content
// and isMe framing relative to the caller.
type MessageView struct {
	ID            string               `json:"id"`
	MatchID       string               `json:"match_id"`
	SenderID      string               `json:"sender_id"`
	Content       string               `json:"content"`
	MessageType   database.MessageType `json:"message_type"`
	SentAt        time.Time            `json:"sent_at"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
	IsMe          bool                 `json:"is_me"`
	Undecryptable bool                 `json:"undecryptable,omitempty"`
}

// ConversationSummary is one entry in a user's conversation list.
type ConversationSummary struct {
	MatchID     string       `json:"match_id"`
	OtherUser   PublicUser   `json:"user"`
	LastMessage *MessageView `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

// PublicUser carries the profile fields safe to show the other participant.
type PublicUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
}

// UnreadCache is the cache surface the conversation service needs; a nil
// cache disables caching without changing behavior.
type UnreadCache interface {
	GetUnreadCount(ctx context.Context, userID string) (int, bool)
	SetUnreadCount(ctx context.Context, userID string, count int)
	InvalidateUnread(ctx context.Context, userID string)
}

// ConversationService manages encrypted messaging scoped to mutual matches.
type ConversationService struct {
	db       *database.DB
	crypto   *crypto.Service
	cache    UnreadCache
	meters   *telemetry.Meters
	notifier *notification.Notifier
}

func NewConversationService(db *database.DB, cryptoService *crypto.Service) *ConversationService {
	return &ConversationService{db: db, crypto: cryptoService}
}

// SetCache attaches an unread-count cache; nil is fine.
func (s *ConversationService) SetCache(c UnreadCache) { s.cache = c }

// SetMeters attaches domain counters; nil is fine.
func (s *ConversationService) SetMeters(m *telemetry.Meters) { s.meters = m }

// SetNotifier attaches a notifier for new-message events; nil is fine.
func (s *ConversationService) SetNotifier(n *notification.Notifier) { s.notifier = n }

// SendMessage encrypts and persists a message from actor within a mutual
// match, updating the match's last activity in the same transaction. The
// returned view carries the plaintext since the caller is the sender.
func (s *ConversationService) SendMessage(ctx context.Context, actorID, matchID, content string, messageType database.MessageType) (*MessageView, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"actor_id":     actorID,
		"match_id":     matchID,
		"message_type": string(messageType),
		"operation":    "send_message",
	})

	if content == "" {
		return nil, errors.NewInvalidArgumentError("content", "message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, errors.NewInvalidArgumentError("content", "message content exceeds maximum length")
	}
	if messageType == "" {
		messageType = database.MessageTypeText
	}

	match, err := s.loadMatchForParticipant(ctx, actorID, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != database.MatchStatusMutual {
		return nil, errors.NewForbiddenError("match is not active")
	}

	receiverID := match.OtherParticipant(actorID)

	payload, err := s.crypto.Encrypt(content)
	if err != nil {
		return nil, errors.NewInternalError("failed to encrypt message", err)
	}

	message := &database.Message{
		ID:          uuid.New().String(),
		MatchID:     matchID,
		SenderID:    actorID,
		ReceiverID:  receiverID,
		Content:     payload,
		MessageType: messageType,
		SentAt:      time.Now().UTC(),
	}

	if err := s.persistMessage(ctx, message); err != nil {
		if errors.IsErrorType(err, errors.ErrorTypeForbidden) {
			return nil, err
		}
		logger.WithError(err).Error("Failed to send message")
		return nil, errors.NewDatabaseError("send_message", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUnread(ctx, receiverID)
	}
	if s.meters != nil {
		s.meters.MessagesSent.Add(ctx, 1)
	}
	if s.notifier != nil {
		s.notifier.Notify(notification.Event{
			Type:        notification.EventNewMessage,
			MatchID:     matchID,
			ActorID:     actorID,
			RecipientID: receiverID,
		})
	}

	logger.WithField("message_id", message.ID).Info("Message sent")

	return &MessageView{
		ID:          message.ID,
		MatchID:     message.MatchID,
		SenderID:    message.SenderID,
		Content:     content,
		MessageType: message.MessageType,
		SentAt:      message.SentAt,
		IsMe:        true,
	}, nil
}

// persistMessage inserts the message and bumps the match's activity in one
// transaction. The status predicate re-checks mutual at write time: the
// match can leave mutual between the participant check and this write, and
// the insert must not survive that. Zero rows updated rolls the insert back.
func (s *ConversationService) persistMessage(ctx context.Context, message *database.Message) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		insertQuery := `
			INSERT INTO messages (id, match_id, sender_id, receiver_id, content, message_type, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, insertQuery,
			message.ID, message.MatchID, message.SenderID, message.ReceiverID,
			message.Content, message.MessageType, message.SentAt,
		); err != nil {
			return err
		}

		updateQuery := `
			UPDATE matches SET last_activity_at = $1, updated_at = $1
			WHERE id = $2 AND status = $3
		`
		result, err := tx.ExecContext(ctx, updateQuery, message.SentAt, message.MatchID, database.MatchStatusMutual)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.NewForbiddenError("match is not active")
		}
		return nil
	})
}

// GetMessages lists messages in the match, decrypted and in chronological
// ascending order for display. A message that fails decryption becomes a
// placeholder entry; its siblings still decrypt.
func (s *ConversationService) GetMessages(ctx context.Context, actorID, matchID string, before *time.Time, limit int) ([]*MessageView, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	if _, err := s.loadMatchForParticipant(ctx, actorID, matchID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, match_id, sender_id, receiver_id, content, message_type, read_at, sent_at
		FROM messages
		WHERE match_id = $1
	`
	args := []interface{}{matchID}

	if before != nil {
		query += ` AND sent_at < $2`
		args = append(args, *before)
	}

	query += ` ORDER BY sent_at DESC, seq DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("get_messages", err)
	}
	defer rows.Close()

	var messages []*database.Message
	for rows.Next() {
		msg := &database.Message{}
		if err := rows.Scan(
			&msg.ID, &msg.MatchID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.MessageType, &msg.ReadAt, &msg.SentAt,
		); err != nil {
			return nil, errors.NewDatabaseError("scan_message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate_messages", err)
	}

	views := make([]*MessageView, 0, len(messages))
	// Rows arrive newest first; walk backwards for ascending display order.
	for i := len(messages) - 1; i >= 0; i-- {
		views = append(views, s.decryptMessage(ctx, messages[i], actorID))
	}

	return views, nil
}

// decryptMessage converts a stored message into the caller's view. Failure
// to decrypt is isolated to the one message.
func (s *ConversationService) decryptMessage(ctx context.Context, msg *database.Message, actorID string) *MessageView {
	view := &MessageView{
		ID:          msg.ID,
		MatchID:     msg.MatchID,
		SenderID:    msg.SenderID,
		MessageType: msg.MessageType,
		SentAt:      msg.SentAt,
		ReadAt:      msg.ReadAt,
		IsMe:        msg.SenderID == actorID,
	}

	content, err := s.crypto.Decrypt(msg.Content)
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation":  "decrypt_message",
			"message_id": msg.ID,
			"match_id":   msg.MatchID,
		}).WithError(err).Error("Message failed authenticated decryption")
		if s.meters != nil {
			s.meters.DecryptFailures.Add(ctx, 1)
		}
		view.Undecryptable = true
		return view
	}

	view.Content = content
	return view
}

// MarkConversationRead stamps a read timestamp on every message addressed
// to actor in the match that does not have one. Idempotent.
func (s *ConversationService) MarkConversationRead(ctx context.Context, actorID, matchID string) error {
	if _, err := s.loadMatchForParticipant(ctx, actorID, matchID); err != nil {
		return err
	}

	query := `
		UPDATE messages SET read_at = $1
		WHERE match_id = $2 AND receiver_id = $3 AND read_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), matchID, actorID); err != nil {
		return errors.NewDatabaseError("mark_conversation_read", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUnread(ctx, actorID)
	}

	return nil
}

// GetConversations returns one summary per mutual match involving actor,
// ordered by most recent activity descending.
func (s *ConversationService) GetConversations(ctx context.Context, actorID string) ([]*ConversationSummary, error) {
	query := `
		SELECT m.id,
		       u.id, u.first_name, u.last_name, u.city,
		       lm.id, lm.sender_id, lm.content, lm.message_type, lm.read_at, lm.sent_at
		FROM matches m
		JOIN users u ON u.id = CASE WHEN m.user1_id = $1 THEN m.user2_id ELSE m.user1_id END
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, message_type, read_at, sent_at
			FROM messages
			WHERE match_id = m.id
			ORDER BY sent_at DESC, seq DESC
			LIMIT 1
		) lm ON true
		WHERE (m.user1_id = $1 OR m.user2_id = $1) AND m.status = $2
		ORDER BY COALESCE(m.last_activity_at, m.matched_at, m.created_at) DESC
	`

	rows, err := s.db.QueryContext(ctx, query, actorID, database.MatchStatusMutual)
	if err != nil {
		return nil, errors.NewDatabaseError("get_conversations", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		summary := &ConversationSummary{}
		var lastID, lastSender sql.NullString
		var lastType sql.NullString
		var lastContent database.EncryptedPayload
		var lastReadAt, lastSentAt sql.NullTime

		if err := rows.Scan(
			&summary.MatchID,
			&summary.OtherUser.ID, &summary.OtherUser.FirstName,
			&summary.OtherUser.LastName, &summary.OtherUser.City,
			&lastID, &lastSender, &lastContent, &lastType, &lastReadAt, &lastSentAt,
		); err != nil {
			return nil, errors.NewDatabaseError("scan_conversation", err)
		}

		if lastID.Valid {
			msg := &database.Message{
				ID:          lastID.String,
				MatchID:     summary.MatchID,
				SenderID:    lastSender.String,
				Content:     lastContent,
				MessageType: database.MessageType(lastType.String),
				SentAt:      lastSentAt.Time,
			}
			if lastReadAt.Valid {
				msg.ReadAt = &lastReadAt.Time
			}
			summary.LastMessage = s.decryptMessage(ctx, msg, actorID)
		}

		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate_conversations", err)
	}

	if err := s.fillUnreadCounts(ctx, actorID, summaries); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (s *ConversationService) fillUnreadCounts(ctx context.Context, actorID string, summaries []*ConversationSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	query := `
		SELECT match_id, COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND read_at IS NULL
		GROUP BY match_id
	`

	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return errors.NewDatabaseError("get_unread_by_match", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var matchID string
		var count int
		if err := rows.Scan(&matchID, &count); err != nil {
			return errors.NewDatabaseError("scan_unread_count", err)
		}
		counts[matchID] = count
	}
	if err := rows.Err(); err != nil {
		return errors.NewDatabaseError("iterate_unread_counts", err)
	}

	for _, summary := range summaries {
		summary.UnreadCount = counts[summary.MatchID]
	}

	return nil
}

// GetUnreadCount returns the total unread messages addressed to actor
// across all matches, served from cache when fresh.
func (s *ConversationService) GetUnreadCount(ctx context.Context, actorID string) (int, error) {
	if s.cache != nil {
		if count, ok := s.cache.GetUnreadCount(ctx, actorID); ok {
			return count, nil
		}
	}

	var count int
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND read_at IS NULL`
	if err := s.db.QueryRowContext(ctx, query, actorID).Scan(&count); err != nil {
		return 0, errors.NewDatabaseError("get_unread_count", err)
	}

	if s.cache != nil {
		s.cache.SetUnreadCount(ctx, actorID, count)
	}

	return count, nil
}

// loadMatchForParticipant loads the match and enforces that actor is one of
// its two participants. A foreign match is indistinguishable from a missing
// one.
func (s *ConversationService) loadMatchForParticipant(ctx context.Context, actorID, matchID string) (*Match, error) {
	query := selectMatchColumns + ` FROM matches WHERE id = $1`
	match, err := scanMatch(s.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("match")
		}
		return nil, errors.NewDatabaseError("get_match", err)
	}

	if !match.HasParticipant(actorID) {
		return nil, errors.NewNotFoundError("match")
	}

	return match, nil
}

package interfaces

import (
	"context"
	"time"

	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/services"
)

// MatchingServiceInterface defines the interface for match lifecycle operations
type MatchingServiceInterface interface {
	Like(ctx context.Context, actorID, targetID string) (*services.Match, bool, error)
	Pass(ctx context.Context, actorID, targetID string) (*services.Match, error)
	Unmatch(ctx context.Context, actorID, matchID string) (*services.Match, error)
	Expire(ctx context.Context, matchID string) (*services.Match, error)
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	GetMatch(ctx context.Context, matchID string) (*services.Match, error)
	GetMatches(ctx context.Context, actorID string, status database.MatchStatus, limit, offset int) ([]*services.MatchWithProfile, error)
	GetStats(ctx context.Context, actorID string) (*services.MatchStats, error)
}

// ConversationServiceInterface defines the interface for encrypted messaging operations
type ConversationServiceInterface interface {
	SendMessage(ctx context.Context, actorID, matchID, content string, messageType database.MessageType) (*services.MessageView, error)
	GetMessages(ctx context.Context, actorID, matchID string, before *time.Time, limit int) ([]*services.MessageView, error)
	MarkConversationRead(ctx context.Context, actorID, matchID string) error
	GetConversations(ctx context.Context, actorID string) ([]*services.ConversationSummary, error)
	GetUnreadCount(ctx context.Context, actorID string) (int, error)
}

// ScentServiceInterface defines the interface for scent profile operations
type ScentServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*database.ScentProfile, error)
	SaveProfile(ctx context.Context, profile *database.ScentProfile) (*database.ScentProfile, error)
	Compatibility(ctx context.Context, userID, otherUserID string) (*services.CompatibilityResult, error)
}

package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/notification"
	"github.com/scentmatch/scentmatch/internal/scoring"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

type Match = database.Match

// MatchWithProfile pairs a match with the other participant's public fields.
type MatchWithProfile struct {
	Match     *Match `json:"match"`
	OtherUser struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Bio       string `json:"bio"`
		City      string `json:"city"`
	} `json:"other_user"`
}

// MatchStats summarizes a user's match counts.
type MatchStats struct {
	MutualMatches   int `json:"mutual_matches"`
	PendingSent     int `json:"pending_sent"`
	PendingReceived int `json:"pending_received"`
}

// MatchingService owns the like/pass/mutual-match/unmatch state machine.
// All transitions for a given unordered pair are serialized through an
// in-process pair lock backed by the unique (user1_id, user2_id) constraint.
type MatchingService struct {
	db       *database.DB
	locks    *pairLocks
	matchTTL time.Duration
	meters   *telemetry.Meters
	notifier *notification.Notifier
}

func NewMatchingService(db *database.DB, matchTTL time.Duration) *MatchingService {
	if matchTTL <= 0 {
		matchTTL = 72 * time.Hour
	}
	return &MatchingService{
		db:       db,
		locks:    newPairLocks(),
		matchTTL: matchTTL,
	}
}

// SetMeters attaches domain counters; nil is fine.
func (s *MatchingService) SetMeters(m *telemetry.Meters) { s.meters = m }

// SetNotifier attaches a notifier for mutual-match events; nil is fine.
func (s *MatchingService) SetNotifier(n *notification.Notifier) { s.notifier = n }

// Like records actor's like of target. It creates a pending match when none
// exists for the pair, promotes a pending match to mutual when the other
// party liked first, and is a no-op when actor already liked. The returned
// bool reports whether this call produced a mutual match.
func (s *MatchingService) Like(ctx context.Context, actorID, targetID string) (*Match, bool, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"actor_id":  actorID,
		"target_id": targetID,
		"operation": "like",
	})

	if err := validatePair(actorID, targetID); err != nil {
		return nil, false, err
	}

	if err := s.checkUserExists(ctx, targetID); err != nil {
		return nil, false, err
	}

	lo, hi := CanonicalPair(actorID, targetID)
	unlock := s.locks.Lock(pairKey(lo, hi))
	defer unlock()

	match, err := s.getMatchByPair(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}

	if match == nil {
		match, err = s.createMatch(ctx, lo, hi, actorID, database.MatchStatusPending)
		if err != nil {
			return nil, false, err
		}
		if s.meters != nil {
			s.meters.RecordDecision(ctx, "like")
		}
		logger.WithField("match_id", match.ID).Info("Created pending match")
		return match, false, nil
	}

	switch match.Status {
	case database.MatchStatusPending:
		if match.LikedBy(actorID) {
			// Repeat like from the original liker.
			return match, false, nil
		}
		match, err = s.promoteToMutual(ctx, match)
		if err != nil {
			return nil, false, err
		}
		if s.meters != nil {
			s.meters.RecordDecision(ctx, "like")
			s.meters.MutualMatches.Add(ctx, 1)
		}
		if s.notifier != nil {
			s.notifier.Notify(notification.Event{
				Type:        notification.EventMutualMatch,
				MatchID:     match.ID,
				ActorID:     actorID,
				RecipientID: targetID,
				Text:        fmt.Sprintf("Mutual match %s", match.ID),
			})
		}
		logger.WithField("match_id", match.ID).Info("Match is now mutual")
		return match, true, nil

	case database.MatchStatusMutual:
		return match, false, nil

	default:
		return nil, false, errors.NewInvalidTransitionError(string(match.Status), string(EventLike))
	}
}

// Pass records actor's decline of target. Passing a pair with no match
// creates the row directly in passed; passing a pending match closes it;
// passing a mutual match is illegal (unmatch instead).
func (s *MatchingService) Pass(ctx context.Context, actorID, targetID string) (*Match, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"actor_id":  actorID,
		"target_id": targetID,
		"operation": "pass",
	})

	if err := validatePair(actorID, targetID); err != nil {
		return nil, err
	}

	if err := s.checkUserExists(ctx, targetID); err != nil {
		return nil, err
	}

	lo, hi := CanonicalPair(actorID, targetID)
	unlock := s.locks.Lock(pairKey(lo, hi))
	defer unlock()

	match, err := s.getMatchByPair(ctx, lo, hi)
	if err != nil {
		return nil, err
	}

	if match == nil {
		match, err = s.createMatch(ctx, lo, hi, actorID, database.MatchStatusPassed)
		if err != nil {
			return nil, err
		}
		if s.meters != nil {
			s.meters.RecordDecision(ctx, "pass")
		}
		return match, nil
	}

	switch match.Status {
	case database.MatchStatusPassed:
		return match, nil

	case database.MatchStatusPending:
		next, err := NextStatus(match.Status, EventPass)
		if err != nil {
			return nil, err
		}
		match, err = s.updateStatus(ctx, match.ID, match.Status, next)
		if err != nil {
			return nil, err
		}
		if s.meters != nil {
			s.meters.RecordDecision(ctx, "pass")
		}
		logger.WithField("match_id", match.ID).Info("Match passed")
		return match, nil

	default:
		return nil, errors.NewInvalidTransitionError(string(match.Status), string(EventPass))
	}
}

// Unmatch ends a mutual match. Only participants may unmatch, and only from
// the mutual state.
func (s *MatchingService) Unmatch(ctx context.Context, actorID, matchID string) (*Match, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"actor_id":  actorID,
		"match_id":  matchID,
		"operation": "unmatch",
	})

	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if !match.HasParticipant(actorID) {
		return nil, errors.NewNotFoundError("match")
	}

	unlock := s.locks.Lock(pairKey(match.User1ID, match.User2ID))
	defer unlock()

	// Re-read under the lock; the status may have moved.
	match, err = s.getMatchByPair(ctx, match.User1ID, match.User2ID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, errors.NewNotFoundError("match")
	}

	next, err := NextStatus(match.Status, EventUnmatch)
	if err != nil {
		return nil, err
	}

	match, err = s.updateStatus(ctx, match.ID, match.Status, next)
	if err != nil {
		return nil, err
	}

	logger.Info("Match unmatched")
	return match, nil
}

// Expire moves a pending match to expired. It is driven by an external
// scheduler, never by user traffic.
func (s *MatchingService) Expire(ctx context.Context, matchID string) (*Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(pairKey(match.User1ID, match.User2ID))
	defer unlock()

	match, err = s.getMatchByPair(ctx, match.User1ID, match.User2ID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, errors.NewNotFoundError("match")
	}

	next, err := NextStatus(match.Status, EventExpire)
	if err != nil {
		return nil, err
	}

	return s.updateStatus(ctx, match.ID, match.Status, next)
}

// ExpireDue expires every pending match whose TTL has elapsed, returning
// the number of matches expired.
func (s *MatchingService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE matches
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $4
	`

	result, err := s.db.ExecContext(ctx, query,
		database.MatchStatusExpired, now, database.MatchStatusPending, now)
	if err != nil {
		return 0, errors.NewDatabaseError("expire_due", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("expire_due", err)
	}

	if affected > 0 {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "expire_due",
			"count":     affected,
		}).Info("Expired pending matches")
	}

	return int(affected), nil
}

// GetMatch loads a match by ID.
func (s *MatchingService) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	query := selectMatchColumns + ` FROM matches WHERE id = $1`
	match, err := scanMatch(s.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("match")
		}
		return nil, errors.NewDatabaseError("get_match", err)
	}
	return match, nil
}

// GetMatches lists actor's matches in the given status with the other
// participant's public profile fields, most recent activity first.
func (s *MatchingService) GetMatches(ctx context.Context, actorID string, status database.MatchStatus, limit, offset int) ([]*MatchWithProfile, error) {
	query := `
		SELECT m.id, m.user1_id, m.user2_id, m.status, m.compatibility_score, m.score_breakdown,
		       m.user1_liked, m.user2_liked, m.matched_at, m.expires_at, m.last_activity_at,
		       m.created_at, m.updated_at,
		       u.id, u.first_name, u.last_name, u.bio, u.city
		FROM matches m
		JOIN users u ON u.id = CASE WHEN m.user1_id = $1 THEN m.user2_id ELSE m.user1_id END
		WHERE (m.user1_id = $1 OR m.user2_id = $1) AND m.status = $2
		ORDER BY COALESCE(m.last_activity_at, m.matched_at, m.created_at) DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.db.QueryContext(ctx, query, actorID, status, limit, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("get_matches", err)
	}
	defer rows.Close()

	var results []*MatchWithProfile
	for rows.Next() {
		entry := &MatchWithProfile{Match: &Match{}}
		m := entry.Match
		err := rows.Scan(
			&m.ID, &m.User1ID, &m.User2ID, &m.Status,
			&m.CompatibilityScore, &m.ScoreBreakdown,
			&m.User1Liked, &m.User2Liked,
			&m.MatchedAt, &m.ExpiresAt, &m.LastActivityAt,
			&m.CreatedAt, &m.UpdatedAt,
			&entry.OtherUser.ID, &entry.OtherUser.FirstName, &entry.OtherUser.LastName,
			&entry.OtherUser.Bio, &entry.OtherUser.City,
		)
		if err != nil {
			return nil, errors.NewDatabaseError("scan_match", err)
		}
		results = append(results, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate_matches", err)
	}

	return results, nil
}

// GetStats returns the actor's match counters.
func (s *MatchingService) GetStats(ctx context.Context, actorID string) (*MatchStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3 AND ((user1_id = $1 AND user1_liked) OR (user2_id = $1 AND user2_liked))),
			COUNT(*) FILTER (WHERE status = $3 AND ((user1_id = $1 AND NOT user1_liked) OR (user2_id = $1 AND NOT user2_liked)))
		FROM matches
		WHERE user1_id = $1 OR user2_id = $1
	`

	stats := &MatchStats{}
	err := s.db.QueryRowContext(ctx, query, actorID,
		database.MatchStatusMutual, database.MatchStatusPending).
		Scan(&stats.MutualMatches, &stats.PendingSent, &stats.PendingReceived)
	if err != nil {
		return nil, errors.NewDatabaseError("get_stats", err)
	}

	return stats, nil
}

const selectMatchColumns = `
	SELECT id, user1_id, user2_id, status, compatibility_score, score_breakdown,
	       user1_liked, user2_liked, matched_at, expires_at, last_activity_at,
	       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*Match, error) {
	m := &Match{}
	err := row.Scan(
		&m.ID, &m.User1ID, &m.User2ID, &m.Status,
		&m.CompatibilityScore, &m.ScoreBreakdown,
		&m.User1Liked, &m.User2Liked,
		&m.MatchedAt, &m.ExpiresAt, &m.LastActivityAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MatchingService) getMatchByPair(ctx context.Context, lo, hi string) (*Match, error) {
	query := selectMatchColumns + ` FROM matches WHERE user1_id = $1 AND user2_id = $2`
	match, err := scanMatch(s.db.QueryRowContext(ctx, query, lo, hi))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewDatabaseError("get_match_by_pair", err)
	}
	return match, nil
}

// createMatch inserts the single row for the canonical pair, stamping the
// compatibility score from both scent profiles at creation time.
func (s *MatchingService) createMatch(ctx context.Context, lo, hi, actorID string, status database.MatchStatus) (*Match, error) {
	score, breakdown := s.scorePair(ctx, lo, hi)

	now := time.Now().UTC()
	match := &Match{
		ID:                 uuid.New().String(),
		User1ID:            lo,
		User2ID:            hi,
		Status:             status,
		CompatibilityScore: score,
		ScoreBreakdown:     breakdown,
		User1Liked:         status == database.MatchStatusPending && actorID == lo,
		User2Liked:         status == database.MatchStatusPending && actorID == hi,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if status == database.MatchStatusPending && s.matchTTL > 0 {
		expires := now.Add(s.matchTTL)
		match.ExpiresAt = &expires
	}

	query := `
		INSERT INTO matches (id, user1_id, user2_id, status, compatibility_score, score_breakdown,
		                     user1_liked, user2_liked, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		match.ID, match.User1ID, match.User2ID, match.Status,
		match.CompatibilityScore, match.ScoreBreakdown,
		match.User1Liked, match.User2Liked, match.ExpiresAt,
		match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// A writer in another process created the row first.
			return nil, errors.NewConflictRetryableError("lost race creating match for pair", err)
		}
		return nil, errors.NewDatabaseError("create_match", err)
	}

	return match, nil
}

// promoteToMutual flips a pending match to mutual. The WHERE clause keeps
// the update atomic across processes: if the row moved out of pending in
// the meantime, zero rows update and the caller may retry.
func (s *MatchingService) promoteToMutual(ctx context.Context, match *Match) (*Match, error) {
	next, err := NextStatus(match.Status, EventLike)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		UPDATE matches
		SET status = $1, user1_liked = true, user2_liked = true,
		    matched_at = $2, last_activity_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, next, now, match.ID, database.MatchStatusPending)
	if err != nil {
		return nil, errors.NewDatabaseError("promote_to_mutual", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewDatabaseError("promote_to_mutual", err)
	}
	if affected == 0 {
		return nil, errors.NewConflictRetryableError("match left pending state during promotion", nil)
	}

	match.Status = next
	match.User1Liked = true
	match.User2Liked = true
	match.MatchedAt = &now
	match.LastActivityAt = &now
	match.UpdatedAt = now
	return match, nil
}

func (s *MatchingService) updateStatus(ctx context.Context, matchID string, from, to database.MatchStatus) (*Match, error) {
	now := time.Now().UTC()
	query := `
		UPDATE matches
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, to, now, matchID, from)
	if err != nil {
		return nil, errors.NewDatabaseError("update_match_status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewDatabaseError("update_match_status", err)
	}
	if affected == 0 {
		return nil, errors.NewConflictRetryableError("match changed state during update", nil)
	}

	return s.GetMatch(ctx, matchID)
}

// scorePair computes the compatibility score for a pair at match-creation
// time. Missing profiles score as empty ones; the scorer's neutral default
// covers the no-preferences case.
func (s *MatchingService) scorePair(ctx context.Context, lo, hi string) (int, database.ScoreBreakdown) {
	loProfile, err := s.getProfile(ctx, lo)
	if err != nil {
		loProfile = &database.ScentProfile{UserID: lo}
	}
	hiProfile, err := s.getProfile(ctx, hi)
	if err != nil {
		hiProfile = &database.ScentProfile{UserID: hi}
	}
	return scoring.Score(loProfile, hiProfile)
}

func (s *MatchingService) getProfile(ctx context.Context, userID string) (*database.ScentProfile, error) {
	profile := &database.ScentProfile{}
	query := `
		SELECT id, user_id, scent_notes, intensity, preferred_notes, avoid_notes, created_at, updated_at
		FROM scent_profiles WHERE user_id = $1
	`
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID, &profile.UserID, &profile.ScentNotes, &profile.Intensity,
		&profile.PreferredNotes, &profile.AvoidNotes,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *MatchingService) checkUserExists(ctx context.Context, userID string) error {
	var isActive bool
	err := s.db.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&isActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("user")
		}
		return errors.NewDatabaseError("check_user", err)
	}
	if !isActive {
		return errors.NewNotFoundError("user")
	}
	return nil
}

func validatePair(actorID, targetID string) error {
	if actorID == "" || targetID == "" {
		return errors.NewInvalidArgumentError("user_id", "user identifiers are required")
	}
	if actorID == targetID {
		return errors.NewInvalidArgumentError("target_id", "cannot match with yourself")
	}
	return nil
}

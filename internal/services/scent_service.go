package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/scoring"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

const (
	minIntensity = 1
	maxIntensity = 10
	maxNoteCount = 20
)

// CompatibilityResult is a scored pair with the per-direction breakdown and
// the note sets the score was computed from.
type CompatibilityResult struct {
	UserID      string                  `json:"user_id"`
	OtherUserID string                  `json:"other_user_id"`
	Score       int                     `json:"score"`
	Breakdown   database.ScoreBreakdown `json:"breakdown"`
	MyNotes     database.StringList     `json:"my_notes"`
	TheirNotes  database.StringList     `json:"their_notes"`
}

// ScentService manages scent profiles and on-demand compatibility scoring.
type ScentService struct {
	db *database.DB
}

func NewScentService(db *database.DB) *ScentService {
	return &ScentService{db: db}
}

// GetProfile returns the user's scent profile.
func (s *ScentService) GetProfile(ctx context.Context, userID string) (*database.ScentProfile, error) {
	if userID == "" {
		return nil, errors.NewInvalidArgumentError("user_id", "user ID is required")
	}

	query := `
		SELECT id, user_id, scent_notes, intensity, preferred_notes, avoid_notes, created_at, updated_at
		FROM scent_profiles WHERE user_id = $1
	`

	profile := &database.ScentProfile{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID, &profile.UserID, &profile.ScentNotes, &profile.Intensity,
		&profile.PreferredNotes, &profile.AvoidNotes, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("scent profile")
		}
		return nil, errors.NewDatabaseError("get_scent_profile", err)
	}

	return profile, nil
}

// SaveProfile creates or replaces the user's scent profile.
func (s *ScentService) SaveProfile(ctx context.Context, profile *database.ScentProfile) (*database.ScentProfile, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"user_id":   profile.UserID,
		"operation": "save_scent_profile",
	})

	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	profile.UpdatedAt = now

	query := `
		INSERT INTO scent_profiles (id, user_id, scent_notes, intensity, preferred_notes, avoid_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			scent_notes = EXCLUDED.scent_notes,
			intensity = EXCLUDED.intensity,
			preferred_notes = EXCLUDED.preferred_notes,
			avoid_notes = EXCLUDED.avoid_notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		profile.ID, profile.UserID, profile.ScentNotes, profile.Intensity,
		profile.PreferredNotes, profile.AvoidNotes, now,
	).Scan(&profile.ID, &profile.CreatedAt)
	if err != nil {
		logger.WithError(err).Error("Failed to save scent profile")
		return nil, errors.NewDatabaseError("save_scent_profile", err)
	}

	logger.Info("Scent profile saved")
	return profile, nil
}

// Compatibility scores the pair on demand without requiring a match row.
func (s *ScentService) Compatibility(ctx context.Context, userID, otherUserID string) (*CompatibilityResult, error) {
	if userID == "" || otherUserID == "" {
		return nil, errors.NewInvalidArgumentError("user_id", "both user IDs are required")
	}
	if userID == otherUserID {
		return nil, errors.NewInvalidArgumentError("other_user_id", "cannot score a user against themselves")
	}

	mine, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	theirs, err := s.GetProfile(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	// The scorer treats argument one as the canonical first participant;
	// present the breakdown from the caller's side regardless of ordering.
	score, breakdown := scoring.Score(mine, theirs)

	return &CompatibilityResult{
		UserID:      userID,
		OtherUserID: otherUserID,
		Score:       score,
		Breakdown:   breakdown,
		MyNotes:     mine.ScentNotes,
		TheirNotes:  theirs.ScentNotes,
	}, nil
}

func validateProfile(profile *database.ScentProfile) error {
	if profile.UserID == "" {
		return errors.NewInvalidArgumentError("user_id", "user ID is required")
	}
	if len(profile.ScentNotes) == 0 {
		return errors.NewInvalidArgumentError("scent_notes", "at least one scent note is required")
	}
	if len(profile.ScentNotes) > maxNoteCount {
		return errors.NewInvalidArgumentError("scent_notes", "too many scent notes")
	}
	if len(profile.PreferredNotes) == 0 {
		return errors.NewInvalidArgumentError("preferred_notes", "at least one preferred note is required")
	}
	if len(profile.PreferredNotes) > maxNoteCount {
		return errors.NewInvalidArgumentError("preferred_notes", "too many preferred notes")
	}
	if len(profile.AvoidNotes) > maxNoteCount {
		return errors.NewInvalidArgumentError("avoid_notes", "too many avoid notes")
	}
	if profile.Intensity < minIntensity || profile.Intensity > maxIntensity {
		return errors.NewInvalidArgumentError("intensity", "intensity must be between 1 and 10")
	}
	return nil
}

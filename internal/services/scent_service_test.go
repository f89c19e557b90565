package services

import (
	"context"
	"testing"

	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateProfile tests the completeness rules enforced on save
func TestValidateProfile(t *testing.T) {
	valid := func() *database.ScentProfile {
		return &database.ScentProfile{
			UserID:         "user-1",
			ScentNotes:     database.StringList{"vanilla", "musk"},
			Intensity:      5,
			PreferredNotes: database.StringList{"cedar"},
			AvoidNotes:     database.StringList{"patchouli"},
		}
	}

	tests := []struct {
		name     string
		mutate   func(p *database.ScentProfile)
		hasError bool
	}{
		{name: "Valid profile", mutate: func(p *database.ScentProfile) {}, hasError: false},
		{name: "No avoid notes is fine", mutate: func(p *database.ScentProfile) { p.AvoidNotes = nil }, hasError: false},
		{name: "Missing user ID", mutate: func(p *database.ScentProfile) { p.UserID = "" }, hasError: true},
		{name: "No scent notes", mutate: func(p *database.ScentProfile) { p.ScentNotes = nil }, hasError: true},
		{name: "No preferred notes", mutate: func(p *database.ScentProfile) { p.PreferredNotes = nil }, hasError: true},
		{name: "Intensity below range", mutate: func(p *database.ScentProfile) { p.Intensity = 0 }, hasError: true},
		{name: "Intensity above range", mutate: func(p *database.ScentProfile) { p.Intensity = 11 }, hasError: true},
		{name: "Too many scent notes", mutate: func(p *database.ScentProfile) {
			for i := 0; i <= maxNoteCount; i++ {
				p.ScentNotes = append(p.ScentNotes, "note")
			}
		}, hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := valid()
			tt.mutate(profile)

			err := validateProfile(profile)

			if tt.hasError {
				require.Error(t, err)
				assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidArgument))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestCompatibility_Validation tests identifier checks before any lookup
func TestCompatibility_Validation(t *testing.T) {
	service := NewScentService(nil)
	ctx := context.Background()

	_, err := service.Compatibility(ctx, "", "user-b")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidArgument))

	_, err = service.Compatibility(ctx, "user-a", "user-a")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeInvalidArgument))
}

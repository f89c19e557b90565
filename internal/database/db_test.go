package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestConfig_DSN tests connection string assembly
func TestConfig_DSN(t *testing.T) {
	config := Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "scentmatch",
		Password: "secret",
		DBName:   "scentmatch",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=scentmatch password=secret dbname=scentmatch sslmode=disable"
	assert.Equal(t, expected, config.dsn())
}

// TestIsUniqueViolation tests unique-constraint error detection
func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Postgres unique violation",
			err:      &pq.Error{Code: "23505"},
			expected: true,
		},
		{
			name:     "Other postgres error",
			err:      &pq.Error{Code: "23503"},
			expected: false,
		},
		{
			name:     "Wrapped unique violation",
			err:      fmt.Errorf("insert failed: %w", &pq.Error{Code: "23505"}),
			expected: true,
		},
		{
			name:     "Plain error",
			err:      fmt.Errorf("something else"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsUniqueViolation(tt.err))
		})
	}
}

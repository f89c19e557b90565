package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubMatching implements the matching interface with canned responses
type stubMatching struct {
	match  *services.Match
	mutual bool
	err    error
}

func (s *stubMatching) Like(ctx context.Context, actorID, targetID string) (*services.Match, bool, error) {
	return s.match, s.mutual, s.err
}

func (s *stubMatching) Pass(ctx context.Context, actorID, targetID string) (*services.Match, error) {
	return s.match, s.err
}

func (s *stubMatching) Unmatch(ctx context.Context, actorID, matchID string) (*services.Match, error) {
	return s.match, s.err
}

func (s *stubMatching) Expire(ctx context.Context, matchID string) (*services.Match, error) {
	return s.match, s.err
}

func (s *stubMatching) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	return 0, s.err
}

func (s *stubMatching) GetMatch(ctx context.Context, matchID string) (*services.Match, error) {
	return s.match, s.err
}

func (s *stubMatching) GetMatches(ctx context.Context, actorID string, status database.MatchStatus, limit, offset int) ([]*services.MatchWithProfile, error) {
	return nil, s.err
}

func (s *stubMatching) GetStats(ctx context.Context, actorID string) (*services.MatchStats, error) {
	return &services.MatchStats{}, s.err
}

// stubConversations implements the conversation interface
type stubConversations struct {
	view   *services.MessageView
	unread int
	err    error
}

func (s *stubConversations) SendMessage(ctx context.Context, actorID, matchID, content string, messageType database.MessageType) (*services.MessageView, error) {
	return s.view, s.err
}

func (s *stubConversations) GetMessages(ctx context.Context, actorID, matchID string, before *time.Time, limit int) ([]*services.MessageView, error) {
	return nil, s.err
}

func (s *stubConversations) MarkConversationRead(ctx context.Context, actorID, matchID string) error {
	return s.err
}

func (s *stubConversations) GetConversations(ctx context.Context, actorID string) ([]*services.ConversationSummary, error) {
	return nil, s.err
}

func (s *stubConversations) GetUnreadCount(ctx context.Context, actorID string) (int, error) {
	return s.unread, s.err
}

// stubScents implements the scent profile interface
type stubScents struct {
	profile *database.ScentProfile
	result  *services.CompatibilityResult
	err     error
}

func (s *stubScents) GetProfile(ctx context.Context, userID string) (*database.ScentProfile, error) {
	return s.profile, s.err
}

func (s *stubScents) SaveProfile(ctx context.Context, profile *database.ScentProfile) (*database.ScentProfile, error) {
	return s.profile, s.err
}

func (s *stubScents) Compatibility(ctx context.Context, userID, otherUserID string) (*services.CompatibilityResult, error) {
	return s.result, s.err
}

func newTestServer(matching *stubMatching, conversations *stubConversations, scents *stubScents) *Server {
	if matching == nil {
		matching = &stubMatching{}
	}
	if conversations == nil {
		conversations = &stubConversations{}
	}
	if scents == nil {
		scents = &stubScents{}
	}
	return New(Options{Matching: matching, Conversations: conversations, Scents: scents})
}

func doRequest(server *Server, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, req)
	return recorder
}

// TestHealthEndpoint tests the health route
func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	resp := doRequest(server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "healthy")
}

// TestMissingUserHeader tests that every authenticated route rejects a
// request without identity
func TestMissingUserHeader(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	resp := doRequest(server, http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// TestLikeEndpoint tests the like route end to end through the router
func TestLikeEndpoint(t *testing.T) {
	match := &services.Match{
		ID:      "match-1",
		User1ID: "user-a",
		User2ID: "user-b",
		Status:  database.MatchStatusMutual,
	}
	server := newTestServer(&stubMatching{match: match, mutual: true}, nil, nil)

	resp := doRequest(server, http.MethodPost, "/api/v1/likes", "user-a", map[string]string{"target_id": "user-b"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Mutual bool `json:"mutual"`
		Match  struct {
			ID string `json:"id"`
		} `json:"match"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Mutual)
	assert.Equal(t, "match-1", body.Match.ID)
}

// TestLikeEndpoint_MissingTarget tests body validation
func TestLikeEndpoint_MissingTarget(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	resp := doRequest(server, http.MethodPost, "/api/v1/likes", "user-a", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// TestErrorMapping tests that service errors surface with their HTTP status
func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "Not found", err: errors.NewNotFoundError("match"), expected: http.StatusNotFound},
		{name: "Invalid transition", err: errors.NewInvalidTransitionError("passed", "like"), expected: http.StatusConflict},
		{name: "Forbidden", err: errors.NewForbiddenError("match is not active"), expected: http.StatusForbidden},
		{name: "Retryable conflict", err: errors.NewConflictRetryableError("lost race", nil), expected: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&stubMatching{err: tt.err}, nil, nil)

			resp := doRequest(server, http.MethodPost, "/api/v1/likes", "user-a", map[string]string{"target_id": "user-b"})
			assert.Equal(t, tt.expected, resp.Code)
		})
	}
}

// TestGetMatch_NonParticipant tests that foreign matches read as missing
func TestGetMatch_NonParticipant(t *testing.T) {
	match := &services.Match{ID: "match-1", User1ID: "user-a", User2ID: "user-b"}
	server := newTestServer(&stubMatching{match: match}, nil, nil)

	resp := doRequest(server, http.MethodGet, "/api/v1/matches/match-1", "user-c", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// TestUnreadCountEndpoint tests the unread counter route
func TestUnreadCountEndpoint(t *testing.T) {
	server := newTestServer(nil, &stubConversations{unread: 3}, nil)

	resp := doRequest(server, http.MethodGet, "/api/v1/messages/unread-count", "user-a", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"unread_count":3`)
}

// TestGetMessages_BadBeforeTimestamp tests query validation
func TestGetMessages_BadBeforeTimestamp(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	resp := doRequest(server, http.MethodGet, "/api/v1/matches/match-1/messages?before=yesterday", "user-a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// TestSendMessageEndpoint tests the created status and payload
func TestSendMessageEndpoint(t *testing.T) {
	view := &services.MessageView{ID: "msg-1", Content: "hello", IsMe: true}
	server := newTestServer(nil, &stubConversations{view: view}, nil)

	resp := doRequest(server, http.MethodPost, "/api/v1/matches/match-1/messages", "user-a", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"msg-1"`)
}

// TestCompatibilityEndpoint tests the scoring route
func TestCompatibilityEndpoint(t *testing.T) {
	result := &services.CompatibilityResult{UserID: "user-a", OtherUserID: "user-b", Score: 50}
	server := newTestServer(nil, nil, &stubScents{result: result})

	resp := doRequest(server, http.MethodGet, "/api/v1/compatibility/user-b", "user-a", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"score":50`)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/service"
	"github.com/quest-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "test-admin-key"

type stubQuestService struct {
	quests    []*models.Quest
	views     []*service.UserQuestView
	created   *service.CreateQuestInput
	createErr error
}

func (s *stubQuestService) ListActiveQuests(ctx context.Context) ([]*models.Quest, error) {
	return s.quests, nil
}

func (s *stubQuestService) ListQuests(ctx context.Context) ([]*models.Quest, error) {
	return s.quests, nil
}

func (s *stubQuestService) GetUserQuests(ctx context.Context, wallet string) ([]*service.UserQuestView, error) {
	return s.views, nil
}

func (s *stubQuestService) CreateQuest(ctx context.Context, input *service.CreateQuestInput) (*models.Quest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = input
	return &models.Quest{ID: 1, Title: input.Title, Type: input.Type, IsActive: true}, nil
}

func (s *stubQuestService) SetQuestActive(ctx context.Context, id int64, active bool) error {
	return nil
}

type stubClaimService struct {
	result *service.ClaimResult
	err    error
	calls  int
}

func (s *stubClaimService) Claim(ctx context.Context, wallet string, questID int64) (*service.ClaimResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubLeaderboardService struct {
	users []*models.User
}

func (s *stubLeaderboardService) Top(ctx context.Context, limit int) ([]*models.User, error) {
	return s.users, nil
}

type stubSeasonService struct {
	active *models.Season
}

func (s *stubSeasonService) ListSeasons(ctx context.Context) ([]*models.Season, error) {
	return nil, nil
}

func (s *stubSeasonService) ActiveSeason(ctx context.Context) (*models.Season, error) {
	return s.active, nil
}

func (s *stubSeasonService) CreateSeason(ctx context.Context, season *models.Season) (*models.Season, error) {
	season.ID = 1
	return season, nil
}

func (s *stubSeasonService) ActivateSeason(ctx context.Context, id int64) (*models.Season, error) {
	return &models.Season{ID: id, IsActive: true}, nil
}

func (s *stubSeasonService) SeasonLeaderboard(ctx context.Context, seasonID int64, limit int) ([]*models.UserSeasonStats, error) {
	return nil, nil
}

type stubProtocolService struct{}

func (s *stubProtocolService) ListProtocols(ctx context.Context) ([]*models.Protocol, error) {
	return nil, nil
}

func (s *stubProtocolService) CreateProtocol(ctx context.Context, protocol *models.Protocol) (*models.Protocol, error) {
	protocol.ID = 1
	return protocol, nil
}

func newTestServer(quests *stubQuestService, claims *stubClaimService) *Server {
	return NewServer(
		&ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			AdminKey:     testAdminKey,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		quests,
		claims,
		&stubLeaderboardService{},
		&stubSeasonService{},
		&stubProtocolService{},
		logging.NewLogger(logging.LevelFatal, logging.FormatText),
	)
}

func doRequest(server *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&stubQuestService{}, &stubClaimService{})

	resp := doRequest(server, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "healthy")
}

func TestListQuests(t *testing.T) {
	server := newTestServer(&stubQuestService{quests: []*models.Quest{{ID: 1, Title: "daily swap"}}}, &stubClaimService{})

	resp := doRequest(server, "GET", "/api/quests", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Quests []*models.Quest `json:"quests"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Quests, 1)
	assert.Equal(t, "daily swap", body.Quests[0].Title)
}

func TestClaimSuccess(t *testing.T) {
	claims := &stubClaimService{result: &service.ClaimResult{
		QuestID:     1,
		XPAwarded:   100,
		BadgeTxHash: "0xfeed",
	}}
	server := newTestServer(&stubQuestService{}, claims)

	body := []byte(`{"wallet":"0xabcdef0123456789abcdef0123456789abcdef01"}`)
	resp := doRequest(server, "POST", "/api/quests/1/claim", body, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, claims.calls)
	assert.Contains(t, resp.Body.String(), "0xfeed")
}

func TestClaimMissingWallet(t *testing.T) {
	claims := &stubClaimService{}
	server := newTestServer(&stubQuestService{}, claims)

	resp := doRequest(server, "POST", "/api/quests/1/claim", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 0, claims.calls)
}

func TestClaimErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown user quest",
			err:        types.ErrUserQuestNotFound("0xabc", 1),
			wantStatus: http.StatusNotFound,
			wantCode:   types.CodeUserQuestNotFound,
		},
		{
			name:       "not completed",
			err:        types.ErrQuestNotCompleted(types.StatusInProgress),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.CodeQuestNotCompleted,
		},
		{
			name:       "already claimed this period",
			err:        types.ErrAlreadyClaimedPeriod("daily:2026-09-01"),
			wantStatus: http.StatusConflict,
			wantCode:   types.CodeAlreadyClaimedPeriod,
		},
		{
			name:       "status conflict",
			err:        &types.ServiceError{Code: types.CodeStatusConflict, Message: "conflict"},
			wantStatus: http.StatusConflict,
			wantCode:   types.CodeStatusConflict,
		},
		{
			name:       "chain not configured",
			err:        &types.ServiceError{Code: types.CodeChainNotConfigured, Message: "no contract"},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   types.CodeChainNotConfigured,
		},
		{
			name:       "opaque error",
			err:        fmt.Errorf("pg connection lost"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&stubQuestService{}, &stubClaimService{err: tt.err})

			body := []byte(`{"wallet":"0xabcdef0123456789abcdef0123456789abcdef01"}`)
			resp := doRequest(server, "POST", "/api/quests/1/claim", body, nil)

			assert.Equal(t, tt.wantStatus, resp.Code)

			var errBody ErrorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errBody))
			assert.Equal(t, tt.wantCode, errBody.Error.Code)
		})
	}
}

func TestAdminRequiresKey(t *testing.T) {
	server := newTestServer(&stubQuestService{}, &stubClaimService{})

	payload := []byte(`{"type":"DAILY","title":"daily swap","requirement":{"type":"SWAP_COUNT","protocol":"saucerswap","minCount":1},"reward":{"xp":100}}`)

	resp := doRequest(server, "POST", "/api/admin/quests", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(server, "POST", "/api/admin/quests", payload, map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(server, "POST", "/api/admin/quests", payload, map[string]string{"X-Admin-Key": testAdminKey})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestAdminCreateQuestDecodesRequirement(t *testing.T) {
	quests := &stubQuestService{}
	server := newTestServer(quests, &stubClaimService{})

	payload := []byte(`{"type":"DAILY","title":"daily swap","requirement":{"type":"SWAP_COUNT","protocol":"saucerswap","minCount":3},"reward":{"xp":100}}`)
	resp := doRequest(server, "POST", "/api/admin/quests", payload, map[string]string{"X-Admin-Key": testAdminKey})

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, quests.created)
	req, ok := quests.created.Requirement.(types.SwapCountRequirement)
	require.True(t, ok)
	assert.Equal(t, int64(3), req.MinCount)
}

func TestAdminCreateQuestRejectsUnknownRequirement(t *testing.T) {
	server := newTestServer(&stubQuestService{}, &stubClaimService{})

	payload := []byte(`{"type":"DAILY","title":"x","requirement":{"type":"FUTURE_KIND"},"reward":{"xp":1}}`)
	resp := doRequest(server, "POST", "/api/admin/quests", payload, map[string]string{"X-Admin-Key": testAdminKey})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetUserQuests(t *testing.T) {
	quests := &stubQuestService{views: []*service.UserQuestView{
		{Quest: &models.Quest{ID: 1}, Status: "COMPLETED"},
	}}
	server := newTestServer(quests, &stubClaimService{})

	resp := doRequest(server, "GET", "/api/users/0xabc/quests", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "COMPLETED")
}

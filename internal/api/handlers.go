package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/service"
	"github.com/quest-engine/internal/types"
)

// handleListQuests returns the active quest catalog.
func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.questService.ListActiveQuests(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"quests": quests})
}

// handleGetUserQuests returns a wallet's progress across active quests.
func (s *Server) handleGetUserQuests(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	if wallet == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "wallet is required", nil)
		return
	}

	views, err := s.questService.GetUserQuests(r.Context(), wallet)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"quests": views})
}

// claimRequest is the claim endpoint payload.
type claimRequest struct {
	Wallet string `json:"wallet"`
}

// handleClaim settles a completed quest for a wallet.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	questID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid quest id", nil)
		return
	}

	var req claimRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}
	if req.Wallet == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "wallet is required", nil)
		return
	}

	result, err := s.claimService.Claim(r.Context(), req.Wallet, questID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleLeaderboard returns the top wallets by lifetime XP.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)

	users, err := s.leaderboardService.Top(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": users})
}

func (s *Server) handleListSeasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := s.seasonService.ListSeasons(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"seasons": seasons})
}

func (s *Server) handleActiveSeason(w http.ResponseWriter, r *http.Request) {
	season, err := s.seasonService.ActiveSeason(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if season == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no active season", nil)
		return
	}
	respondJSON(w, http.StatusOK, season)
}

func (s *Server) handleSeasonLeaderboard(w http.ResponseWriter, r *http.Request) {
	seasonID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid season id", nil)
		return
	}

	stats, err := s.seasonService.SeasonLeaderboard(r.Context(), seasonID, queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": stats})
}

func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := s.protocolService.ListProtocols(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"protocols": protocols})
}

// Admin handlers

func (s *Server) handleAdminListQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.questService.ListQuests(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"quests": quests})
}

// createQuestRequest is the admin quest creation payload. The requirement
// arrives as raw JSON and must decode to a known kind.
type createQuestRequest struct {
	ProtocolID  *int64          `json:"protocolId,omitempty"`
	Type        types.QuestType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Requirement json.RawMessage `json:"requirement"`
	Reward      models.Reward   `json:"reward"`
	BadgeURI    string          `json:"badgeUri"`
	Repeatable  bool            `json:"repeatable"`
	StartAt     *time.Time      `json:"startAt,omitempty"`
	EndAt       *time.Time      `json:"endAt,omitempty"`
	SeasonID    *int64          `json:"seasonId,omitempty"`
}

func (s *Server) handleAdminCreateQuest(w http.ResponseWriter, r *http.Request) {
	var req createQuestRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}
	if len(req.Requirement) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "requirement is required", nil)
		return
	}

	requirement, err := types.DecodeRequirement(req.Requirement)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if _, unknown := requirement.(types.UnknownRequirement); unknown {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "unsupported requirement type", nil)
		return
	}

	quest, err := s.questService.CreateQuest(r.Context(), &service.CreateQuestInput{
		ProtocolID:  req.ProtocolID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Requirement: requirement,
		Reward:      req.Reward,
		BadgeURI:    req.BadgeURI,
		Repeatable:  req.Repeatable,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		SeasonID:    req.SeasonID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, quest)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleAdminSetQuestActive(w http.ResponseWriter, r *http.Request) {
	questID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid quest id", nil)
		return
	}

	var req setActiveRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}

	if err := s.questService.SetQuestActive(r.Context(), questID, req.Active); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": questID, "active": req.Active})
}

func (s *Server) handleAdminCreateSeason(w http.ResponseWriter, r *http.Request) {
	var season models.Season
	if err := parseJSONBody(r, &season); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}

	created, err := s.seasonService.CreateSeason(r.Context(), &season)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAdminActivateSeason(w http.ResponseWriter, r *http.Request) {
	seasonID, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid season id", nil)
		return
	}

	season, err := s.seasonService.ActivateSeason(r.Context(), seasonID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, season)
}

func (s *Server) handleAdminCreateProtocol(w http.ResponseWriter, r *http.Request) {
	var protocol models.Protocol
	if err := parseJSONBody(r, &protocol); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
		return
	}

	created, err := s.protocolService.CreateProtocol(r.Context(), &protocol)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// pathID parses a numeric path variable.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// queryInt parses an optional numeric query parameter.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

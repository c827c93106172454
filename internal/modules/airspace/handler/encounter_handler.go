package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/modules/airspace/service"
	"taklaci-self/internal/pkg/response"
	"taklaci-self/internal/pkg/xerrors"
)

// EncounterHandler handles encounter HTTP requests
type EncounterHandler struct {
	encounterService *service.EncounterService
	respWriter       response.Writer
}

// NewEncounterHandler creates a new encounter handler
func NewEncounterHandler(encounterService *service.EncounterService, respWriter response.Writer) *EncounterHandler {
	return &EncounterHandler{
		encounterService: encounterService,
		respWriter:       respWriter,
	}
}

// ==================== HTTP Response Models ====================

// EncounterResponse HTTP encounter response
type EncounterResponse struct {
	ID                 string   `json:"id"`
	InitiatorSessionID string   `json:"initiator_session_id"`
	TargetSessionID    string   `json:"target_session_id"`
	InitiatorPlayerID  string   `json:"initiator_player_id"`
	TargetPlayerID     string   `json:"target_player_id"`
	State              string   `json:"state"`
	WinnerPlayerID     string   `json:"winner_player_id,omitempty"`
	LootedBirdIDs      []string `json:"looted_bird_ids,omitempty"`
	CoinsLooted        int      `json:"coins_looted"`
	InitiatorPower     int      `json:"initiator_power"`
	TargetPower        int      `json:"target_power"`
	RandomRoll         int      `json:"random_roll"`
	CreatedAt          string   `json:"created_at"`
	ResolvedAt         string   `json:"resolved_at,omitempty"`
}

func toEncounterResponse(encounter *entity.Encounter) *EncounterResponse {
	resp := &EncounterResponse{
		ID:                 encounter.ID,
		InitiatorSessionID: encounter.InitiatorSessionID,
		TargetSessionID:    encounter.TargetSessionID,
		InitiatorPlayerID:  encounter.InitiatorPlayerID,
		TargetPlayerID:     encounter.TargetPlayerID,
		State:              encounter.State.String(),
		LootedBirdIDs:      encounter.LootedBirdIDs,
		CoinsLooted:        encounter.CoinsLooted,
		InitiatorPower:     encounter.InitiatorPower,
		TargetPower:        encounter.TargetPower,
		RandomRoll:         encounter.RandomRoll,
		CreatedAt:          encounter.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if encounter.WinnerPlayerID.Valid {
		resp.WinnerPlayerID = encounter.WinnerPlayerID.String
	}
	if encounter.ResolvedAt.Valid {
		resp.ResolvedAt = encounter.ResolvedAt.Time.Format("2006-01-02 15:04:05")
	}
	return resp
}

// ==================== HTTP Handlers ====================

// GetEncounter handles single encounter query
// @Summary 查询遭遇
// @Tags 遭遇
// @Produce json
// @Param id path string true "遭遇ID"
// @Success 200 {object} response.ResponseResult{data=EncounterResponse} "查询成功"
// @Failure 404 {object} response.ResponseResult "遭遇不存在"
// @Router /airspace/encounters/{id} [get]
func (h *EncounterHandler) GetEncounter(c echo.Context) error {
	encounter, err := h.encounterService.GetEncounter(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if !encounter.InvolvesPlayer(playerID(c)) {
		return response.EchoError(c, h.respWriter, xerrors.FromCode(xerrors.CodeOperationNotAllowed))
	}
	return response.EchoOK(c, h.respWriter, toEncounterResponse(encounter))
}

// GetActiveEncounters handles active encounters query
// @Summary 查询进行中的遭遇
// @Tags 遭遇
// @Produce json
// @Success 200 {object} response.ResponseResult{data=[]EncounterResponse} "查询成功"
// @Router /airspace/encounters/active [get]
func (h *EncounterHandler) GetActiveEncounters(c echo.Context) error {
	encounters, err := h.encounterService.GetActiveEncounters(c.Request().Context(), playerID(c))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	resp := make([]*EncounterResponse, 0, len(encounters))
	for _, encounter := range encounters {
		resp = append(resp, toEncounterResponse(encounter))
	}
	return response.EchoOK(c, h.respWriter, resp)
}

// GetEncounterHistory handles encounter history query
// @Summary 查询遭遇历史
// @Tags 遭遇
// @Produce json
// @Param limit query int false "返回条数上限" default(20)
// @Success 200 {object} response.ResponseResult{data=[]EncounterResponse} "查询成功"
// @Router /airspace/encounters/history [get]
func (h *EncounterHandler) GetEncounterHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	encounters, err := h.encounterService.GetEncounterHistory(c.Request().Context(), playerID(c), limit)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	resp := make([]*EncounterResponse, 0, len(encounters))
	for _, encounter := range encounters {
		resp = append(resp, toEncounterResponse(encounter))
	}
	return response.EchoOK(c, h.respWriter, resp)
}

// PreviewEncounter handles encounter preview
// @Summary 预览遭遇
// @Description 按双方当前鸽群计算战力与胜率，不掷点不落库
// @Tags 遭遇
// @Produce json
// @Param id path string true "遭遇ID"
// @Success 200 {object} response.ResponseResult{data=service.EncounterPreview} "预览成功"
// @Failure 409 {object} response.ResponseResult "遭遇已终结"
// @Router /airspace/encounters/{id}/preview [get]
func (h *EncounterHandler) PreviewEncounter(c echo.Context) error {
	preview, err := h.encounterService.PreviewEncounter(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, preview)
}

// PreviewMatchup handles speculative matchup preview
// @Summary 推演假想对局
// @Description 推演自己的会话与任意对手会话的战力与胜率，不要求存在遭遇
// @Tags 遭遇
// @Produce json
// @Param id path string true "己方会话ID"
// @Param opponent_session_id query string true "对手会话ID"
// @Success 200 {object} response.ResponseResult{data=service.EncounterPreview} "推演成功"
// @Failure 400 {object} response.ResponseResult "参数错误"
// @Router /airspace/flights/{id}/matchup [get]
func (h *EncounterHandler) PreviewMatchup(c echo.Context) error {
	opponentSessionID := c.QueryParam("opponent_session_id")
	if opponentSessionID == "" {
		return response.EchoBadRequest(c, h.respWriter, "缺少对手会话ID")
	}

	preview, err := h.encounterService.PreviewMatchup(c.Request().Context(), c.Param("id"), opponentSessionID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, preview)
}

// ResolveEncounter handles manual encounter resolution
// @Summary 结算遭遇
// @Description 立即结算遭遇，不等待超时。幂等。
// @Tags 遭遇
// @Produce json
// @Param id path string true "遭遇ID"
// @Success 200 {object} response.ResponseResult{data=EncounterResponse} "结算成功"
// @Router /airspace/encounters/{id}/resolve [post]
func (h *EncounterHandler) ResolveEncounter(c echo.Context) error {
	encounter, err := h.encounterService.GetEncounter(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if !encounter.InvolvesPlayer(playerID(c)) {
		return response.EchoError(c, h.respWriter, xerrors.FromCode(xerrors.CodeOperationNotAllowed))
	}

	resolved, err := h.encounterService.ResolveEncounter(c.Request().Context(), encounter.ID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, toEncounterResponse(resolved))
}

// CancelEncounter handles encounter cancellation
// @Summary 取消遭遇
// @Description 取消等待中的遭遇，已终结的遭遇原样返回
// @Tags 遭遇
// @Produce json
// @Param id path string true "遭遇ID"
// @Success 200 {object} response.ResponseResult{data=EncounterResponse} "取消成功"
// @Router /airspace/encounters/{id}/cancel [post]
func (h *EncounterHandler) CancelEncounter(c echo.Context) error {
	encounter, err := h.encounterService.GetEncounter(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if !encounter.InvolvesPlayer(playerID(c)) {
		return response.EchoError(c, h.respWriter, xerrors.FromCode(xerrors.CodeOperationNotAllowed))
	}

	cancelled, err := h.encounterService.CancelEncounter(c.Request().Context(), encounter.ID)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, toEncounterResponse(cancelled))
}

// GetPlayerStats handles player stats query
// @Summary 查询玩家战绩
// @Tags 玩家
// @Produce json
// @Success 200 {object} response.ResponseResult{data=service.PlayerStats} "查询成功"
// @Router /airspace/players/me/stats [get]
func (h *EncounterHandler) GetPlayerStats(c echo.Context) error {
	stats, err := h.encounterService.GetPlayerStats(c.Request().Context(), playerID(c))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, stats)
}

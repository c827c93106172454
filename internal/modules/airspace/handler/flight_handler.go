package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"taklaci-self/internal/combat"
	"taklaci-self/internal/entity"
	"taklaci-self/internal/modules/airspace/service"
	"taklaci-self/internal/pkg/response"
)

// FlightHandler handles flight session HTTP requests
type FlightHandler struct {
	flightService *service.FlightService
	respWriter    response.Writer
}

// NewFlightHandler creates a new flight handler
func NewFlightHandler(flightService *service.FlightService, respWriter response.Writer) *FlightHandler {
	return &FlightHandler{
		flightService: flightService,
		respWriter:    respWriter,
	}
}

// ==================== HTTP Request/Response Models ====================

// StartFlightRequest HTTP start flight request
type StartFlightRequest struct {
	BirdIDs         []string `json:"bird_ids" validate:"required,min=1,dive,required"`
	Latitude        float64  `json:"latitude" validate:"min=-90,max=90"`
	Longitude       float64  `json:"longitude" validate:"min=-180,max=180"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,min=1,max=720"`
}

// UpdatePositionRequest HTTP position update request
type UpdatePositionRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Altitude  float64 `json:"altitude" validate:"min=0,max=10000"`
}

// FlightSessionResponse HTTP flight session response
type FlightSessionResponse struct {
	ID              string   `json:"id"`
	PlayerID        string   `json:"player_id"`
	BirdIDs         []string `json:"bird_ids"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	Altitude        float64  `json:"altitude"`
	StartedAt       string   `json:"started_at"`
	EndedAt         string   `json:"ended_at,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	IsActive        bool     `json:"is_active"`
	EncountersCount int      `json:"encounters_count"`
}

func toFlightSessionResponse(session *entity.FlightSession) *FlightSessionResponse {
	resp := &FlightSessionResponse{
		ID:              session.ID,
		PlayerID:        session.PlayerID,
		BirdIDs:         session.BirdIDs,
		Latitude:        session.Latitude,
		Longitude:       session.Longitude,
		Altitude:        session.Altitude,
		StartedAt:       session.StartedAt.Format("2006-01-02 15:04:05"),
		DurationMinutes: session.DurationMinutes,
		IsActive:        session.IsActive,
		EncountersCount: session.EncountersCount,
	}
	if session.EndedAt.Valid {
		resp.EndedAt = session.EndedAt.Time.Format("2006-01-02 15:04:05")
	}
	return resp
}

// ==================== HTTP Handlers ====================

// StartFlight handles flight start
// @Summary 开始放飞
// @Description 带一群鸽子在指定坐标开始放飞
// @Tags 放飞
// @Accept json
// @Produce json
// @Param request body StartFlightRequest true "开始放飞请求"
// @Success 200 {object} response.ResponseResult{data=FlightSessionResponse} "放飞成功"
// @Failure 400 {object} response.ResponseResult "请求参数错误"
// @Failure 409 {object} response.ResponseResult "已有进行中的放飞"
// @Router /airspace/flights [post]
func (h *FlightHandler) StartFlight(c echo.Context) error {
	var req StartFlightRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, err.Error())
	}

	session, err := h.flightService.StartFlight(c.Request().Context(), &service.StartFlightRequest{
		PlayerID:        playerID(c),
		BirdIDs:         req.BirdIDs,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	return response.EchoOK(c, h.respWriter, toFlightSessionResponse(session))
}

// EndFlight handles manual flight end
// @Summary 结束放飞
// @Description 手动结束放飞，鸽子归巢并扣除体力
// @Tags 放飞
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.ResponseResult{data=FlightSessionResponse} "结束成功"
// @Failure 404 {object} response.ResponseResult "会话不存在"
// @Router /airspace/flights/{id}/end [post]
func (h *FlightHandler) EndFlight(c echo.Context) error {
	session, err := h.flightService.EndFlight(c.Request().Context(), playerID(c), c.Param("id"))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, toFlightSessionResponse(session))
}

// UpdatePosition handles flight position update
// @Summary 更新放飞位置
// @Tags 放飞
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body UpdatePositionRequest true "位置更新请求"
// @Success 200 {object} response.ResponseResult{data=FlightSessionResponse} "更新成功"
// @Router /airspace/flights/{id}/position [put]
func (h *FlightHandler) UpdatePosition(c echo.Context) error {
	var req UpdatePositionRequest
	if err := c.Bind(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoBadRequest(c, h.respWriter, err.Error())
	}

	session, err := h.flightService.UpdatePosition(c.Request().Context(), &service.UpdatePositionRequest{
		PlayerID:  playerID(c),
		SessionID: c.Param("id"),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Altitude:  req.Altitude,
	})
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, toFlightSessionResponse(session))
}

// GetActiveFlight handles active flight query
// @Summary 查询当前放飞
// @Tags 放飞
// @Produce json
// @Success 200 {object} response.ResponseResult{data=FlightSessionResponse} "查询成功，无进行中放飞时 data 为空"
// @Router /airspace/flights/active [get]
func (h *FlightHandler) GetActiveFlight(c echo.Context) error {
	session, err := h.flightService.GetActiveFlight(c.Request().Context(), playerID(c))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if session == nil {
		return response.EchoOK(c, h.respWriter, response.EmptyData{})
	}
	return response.EchoOK(c, h.respWriter, toFlightSessionResponse(session))
}

// GetFlightHistory handles flight history query
// @Summary 查询放飞历史
// @Tags 放飞
// @Produce json
// @Param limit query int false "返回条数上限" default(20)
// @Success 200 {object} response.ResponseResult{data=[]FlightSessionResponse} "查询成功"
// @Router /airspace/flights/history [get]
func (h *FlightHandler) GetFlightHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	sessions, err := h.flightService.GetFlightHistory(c.Request().Context(), playerID(c), limit)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	resp := make([]*FlightSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, toFlightSessionResponse(session))
	}
	return response.EchoOK(c, h.respWriter, resp)
}

// NearbyFlightResponse HTTP nearby flight entry
type NearbyFlightResponse struct {
	SessionID      string  `json:"session_id"`
	PlayerID       string  `json:"player_id"`
	BirdCount      int     `json:"bird_count"`
	DistanceMeters float64 `json:"distance_meters"`
	FlockPower     int     `json:"flock_power"`
}

// GetNearbyFlights handles nearby airspace query
// @Summary 查询附近空域
// @Description 返回指定会话检测半径内的其他玩家会话
// @Tags 放飞
// @Produce json
// @Param id path string true "会话ID"
// @Param range query number false "搜索半径（米）" default(500)
// @Success 200 {object} response.ResponseResult{data=[]NearbyFlightResponse} "查询成功"
// @Router /airspace/flights/{id}/nearby [get]
func (h *FlightHandler) GetNearbyFlights(c echo.Context) error {
	rangeMeters, _ := strconv.ParseFloat(c.QueryParam("range"), 64)

	nearby, err := h.flightService.NearbyFlights(c.Request().Context(), c.Param("id"), rangeMeters)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	resp := make([]*NearbyFlightResponse, 0, len(nearby))
	for _, n := range nearby {
		resp = append(resp, &NearbyFlightResponse{
			SessionID:      n.Session.ID,
			PlayerID:       n.Session.PlayerID,
			BirdCount:      len(n.Session.BirdIDs),
			DistanceMeters: n.DistanceMeters,
			FlockPower:     n.FlockPower,
		})
	}
	return response.EchoOK(c, h.respWriter, resp)
}

// BirdResponse HTTP bird summary
type BirdResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Rarity     string `json:"rarity"`
	Element    string `json:"element"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"max_health"`
	Stamina    int    `json:"stamina"`
	MaxStamina int    `json:"max_stamina"`
	Power      int    `json:"power"`
}

// GetPlayerBirds handles coop listing
// @Summary 查询名下鸽子
// @Description 返回玩家名下全部鸽子及当前单鸽战力
// @Tags 玩家
// @Produce json
// @Success 200 {object} response.ResponseResult{data=[]BirdResponse} "查询成功"
// @Router /airspace/players/me/birds [get]
func (h *FlightHandler) GetPlayerBirds(c echo.Context) error {
	birds, err := h.flightService.GetPlayerBirds(c.Request().Context(), playerID(c))
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	resp := make([]*BirdResponse, 0, len(birds))
	for _, bird := range birds {
		resp = append(resp, &BirdResponse{
			ID:         bird.ID,
			Name:       bird.Name,
			State:      bird.State.String(),
			Rarity:     bird.Rarity.String(),
			Element:    bird.Element.String(),
			Health:     bird.Health,
			MaxHealth:  bird.MaxHealth,
			Stamina:    bird.Stamina,
			MaxStamina: bird.MaxStamina,
			Power:      combat.BirdPower(bird),
		})
	}
	return response.EchoOK(c, h.respWriter, resp)
}

// GoOffline handles explicit presence sign-off
// @Summary 标记离线
// @Description 网关在客户端断开或登出时调用，放飞会话不受影响
// @Tags 玩家
// @Produce json
// @Success 200 {object} response.ResponseResult "标记成功"
// @Router /airspace/players/me/offline [post]
func (h *FlightHandler) GoOffline(c echo.Context) error {
	if err := h.flightService.GoOffline(c.Request().Context(), playerID(c)); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, response.EmptyData{})
}

// playerID 从上下文取身份中间件注入的玩家ID
func playerID(c echo.Context) string {
	if v, ok := c.Get("player_id").(string); ok {
		return v
	}
	return ""
}

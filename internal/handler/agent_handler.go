package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/agentdesk/internal/agent"
	"github.com/hitoshi/agentdesk/internal/middleware"
	"github.com/hitoshi/agentdesk/internal/model"
)

// AgentServiceInterface はエージェントハンドラーが必要とするサービスインターフェース。
type AgentServiceInterface interface {
	// Create はエージェントと配下のルート詳細を一括作成する。
	Create(ctx context.Context, userID string, input agent.CreateInput) (*model.Agent, error)
	// ListByOwner は指定ユーザーのエージェント一覧を名前昇順で返す。
	ListByOwner(ctx context.Context, userID string) ([]*model.Agent, error)
}

// AgentMetricsRecorder はエージェントハンドラーが記録するメトリクスのインターフェース。
type AgentMetricsRecorder interface {
	RecordAgentCreated(routeDetails int)
}

// AgentHandler はエージェント管理のHTTPハンドラー。
type AgentHandler struct {
	service AgentServiceInterface
	metrics AgentMetricsRecorder
}

// NewAgentHandler はAgentHandlerを生成する。
// metricsはnilを許容する（テスト用）。
func NewAgentHandler(service AgentServiceInterface, metrics AgentMetricsRecorder) *AgentHandler {
	return &AgentHandler{
		service: service,
		metrics: metrics,
	}
}

// routeDetailRequest はエージェント作成リクエスト内のルート詳細。
type routeDetailRequest struct {
	Route  string `json:"route"`
	Prompt string `json:"prompt"`
}

// createAgentRequest はエージェント作成リクエストのボディ。
type createAgentRequest struct {
	Name         string               `json:"name"`
	Prompt       string               `json:"prompt"`
	Type         string               `json:"type"`
	RouteDetails []routeDetailRequest `json:"routeDetails"`
}

// routeDetailResponse はルート詳細のAPIレスポンス。
type routeDetailResponse struct {
	ID     string `json:"id"`
	Route  string `json:"route"`
	Prompt string `json:"prompt"`
}

// agentResponse はエージェントのAPIレスポンス。
// ルート詳細は作成順（position昇順）で並ぶ。
type agentResponse struct {
	ID           string                `json:"id"`
	UserID       string                `json:"userId"`
	Name         string                `json:"name"`
	Prompt       string                `json:"prompt"`
	Type         string                `json:"type"`
	RouteDetails []routeDetailResponse `json:"routeDetails"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// CreateAgent はエージェントと配下のルート詳細を一括作成する。
// POST /api/agents
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	input := agent.CreateInput{
		Name:   req.Name,
		Prompt: req.Prompt,
		Type:   model.AgentType(req.Type),
	}
	for _, rd := range req.RouteDetails {
		input.RouteDetails = append(input.RouteDetails, agent.RouteDetailInput{
			Route:  rd.Route,
			Prompt: rd.Prompt,
		})
	}

	created, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAgentCreated(len(created.RouteDetails))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAgentResponse(created))
}

// ListAgents はユーザーのエージェント一覧を名前昇順で返す。
// GET /api/agents
// 取得失敗は空リストに丸めず、500として呼び出し側に伝える。
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	agents, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		responses = append(responses, toAgentResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// toAgentResponse はドメインモデルをAPIレスポンスに変換する。
func toAgentResponse(a *model.Agent) agentResponse {
	resp := agentResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Prompt:       a.Prompt,
		Type:         string(a.Type),
		RouteDetails: make([]routeDetailResponse, 0, len(a.RouteDetails)),
		CreatedAt:    a.CreatedAt,
	}
	for _, rd := range a.RouteDetails {
		resp.RouteDetails = append(resp.RouteDetails, routeDetailResponse{
			ID:     rd.ID,
			Route:  rd.Route,
			Prompt: rd.Prompt,
		})
	}
	return resp
}

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeEmailConflict:
		return http.StatusConflict
	case model.ErrCodeUnauthorized, model.ErrCodeLoginFailed:
		return http.StatusUnauthorized
	case model.ErrCodeAgentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Package agent はエージェントに関するビジネスロジックを提供する。
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agentdesk/internal/model"
	"github.com/hitoshi/agentdesk/internal/repository"
	"github.com/hitoshi/agentdesk/internal/security"
)

// RouteDetailInput はエージェント作成時のルート詳細入力を表す。
type RouteDetailInput struct {
	Route  string
	Prompt string
}

// CreateInput はエージェント作成の入力を表す。
type CreateInput struct {
	Name         string
	Prompt       string
	Type         model.AgentType
	RouteDetails []RouteDetailInput
}

// Service はエージェントの作成・一覧取得を提供する。
type Service struct {
	agentRepo repository.AgentRepository
	sanitizer security.PromptSanitizerService
}

// NewService はServiceを生成する。
func NewService(agentRepo repository.AgentRepository, sanitizer security.PromptSanitizerService) *Service {
	return &Service{
		agentRepo: agentRepo,
		sanitizer: sanitizer,
	}
}

// Create はエージェントと配下のルート詳細を一括作成する。
// 名前・プロンプトはサニタイズ後に必須検証を行い、
// エージェントと全ルート詳細は同一トランザクションで永続化される
// （部分的な作成結果は観測されない）。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Agent, error) {
	name := s.sanitizer.Sanitize(input.Name)
	prompt := s.sanitizer.Sanitize(input.Prompt)

	if name == "" || prompt == "" {
		return nil, model.NewValidationError("名前とプロンプトは必須項目です。")
	}

	now := time.Now()
	agent := &model.Agent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Prompt:    prompt,
		Type:      input.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// ルート詳細を送信順に構築（positionが作成順を保持する）
	for i, detail := range input.RouteDetails {
		route := s.sanitizer.Sanitize(detail.Route)
		rdPrompt := s.sanitizer.Sanitize(detail.Prompt)
		if route == "" || rdPrompt == "" {
			return nil, model.NewValidationError(fmt.Sprintf("ルート詳細%dのルートとプロンプトは必須項目です。", i+1))
		}

		agent.RouteDetails = append(agent.RouteDetails, model.RouteDetail{
			ID:        uuid.New().String(),
			AgentID:   agent.ID,
			Route:     route,
			Prompt:    rdPrompt,
			Position:  i,
			CreatedAt: now,
		})
	}

	if err := s.agentRepo.CreateWithRouteDetails(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	slog.Info("agent created",
		slog.String("agent_id", agent.ID),
		slog.String("user_id", userID),
		slog.String("type", string(agent.Type)),
		slog.Int("route_details", len(agent.RouteDetails)),
	)

	return agent, nil
}

// ListByOwner は指定ユーザーのエージェント一覧を名前昇順で返す。
// 永続化層の失敗はエラーとして呼び出し側に伝播する。
// 「エージェントが0件」と「取得失敗」を呼び出し側が区別できるようにするための設計。
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]*model.Agent, error) {
	agents, err := s.agentRepo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

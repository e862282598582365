package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/agentdesk/internal/model"
)

// PostgresAgentRepo はPostgreSQLを使用したエージェントリポジトリ。
type PostgresAgentRepo struct {
	db *sql.DB
}

// NewPostgresAgentRepo はPostgresAgentRepoを生成する。
func NewPostgresAgentRepo(db *sql.DB) *PostgresAgentRepo {
	return &PostgresAgentRepo{db: db}
}

// CreateWithRouteDetails はエージェントと配下の全ルート詳細を
// 同一トランザクションで作成する。途中で失敗した場合は全体をロールバックし、
// 部分的なエージェント/ルート詳細の組は永続化されない。
func (r *PostgresAgentRepo) CreateWithRouteDetails(ctx context.Context, agent *model.Agent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// エージェントを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO agents (id, user_id, name, prompt, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agent.ID, agent.UserID, agent.Name, agent.Prompt, agent.Type, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}

	// ルート詳細を送信順に作成
	for i := range agent.RouteDetails {
		rd := &agent.RouteDetails[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO route_details (id, agent_id, route, prompt, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rd.ID, rd.AgentID, rd.Route, rd.Prompt, rd.Position, rd.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert route detail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDのエージェントをルート詳細付きで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresAgentRepo) FindByID(ctx context.Context, id string) (*model.Agent, error) {
	agent := &model.Agent{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prompt, type, created_at, updated_at
		 FROM agents WHERE id = $1`,
		id,
	).Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Prompt, &agent.Type, &agent.CreatedAt, &agent.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find agent by ID: %w", err)
	}

	details, err := r.listRouteDetails(ctx, []string{agent.ID})
	if err != nil {
		return nil, err
	}
	agent.RouteDetails = details[agent.ID]

	return agent, nil
}

// ListByOwner は指定ユーザーのエージェント一覧を名前昇順で返す。
// 各エージェントにはルート詳細をposition順で付与する。
// 永続化層の失敗はそのままエラーとして返す（空リストに丸めない）。
func (r *PostgresAgentRepo) ListByOwner(ctx context.Context, userID string) ([]*model.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, prompt, type, created_at, updated_at
		 FROM agents WHERE user_id = $1
		 ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*model.Agent
	var agentIDs []string
	for rows.Next() {
		agent := &model.Agent{}
		if err := rows.Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Prompt, &agent.Type, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
		agentIDs = append(agentIDs, agent.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agents: %w", err)
	}

	if len(agents) == 0 {
		return agents, nil
	}

	details, err := r.listRouteDetails(ctx, agentIDs)
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		agent.RouteDetails = details[agent.ID]
	}

	return agents, nil
}

// listRouteDetails は指定エージェント群のルート詳細をposition昇順で取得し、
// エージェントIDごとにまとめて返す。
func (r *PostgresAgentRepo) listRouteDetails(ctx context.Context, agentIDs []string) (map[string][]model.RouteDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, route, prompt, position, created_at
		 FROM route_details WHERE agent_id = ANY($1)
		 ORDER BY agent_id, position ASC`,
		pq.Array(agentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list route details: %w", err)
	}
	defer rows.Close()

	details := make(map[string][]model.RouteDetail)
	for rows.Next() {
		var rd model.RouteDetail
		if err := rows.Scan(&rd.ID, &rd.AgentID, &rd.Route, &rd.Prompt, &rd.Position, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan route detail: %w", err)
		}
		details[rd.AgentID] = append(details[rd.AgentID], rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate route details: %w", err)
	}

	return details, nil
}

// compile-time interface check
var _ AgentRepository = (*PostgresAgentRepo)(nil)

// Package webui はサーバーレンダリングのページを提供する。
// テンプレートは埋め込みファイルシステムから起動時に1回パースする。
package webui

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/agentdesk/internal/middleware"
	"github.com/hitoshi/agentdesk/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// AgentLister はエージェント一覧ページが必要とするサービスインターフェース。
type AgentLister interface {
	ListByOwner(ctx context.Context, userID string) ([]*model.Agent, error)
}

// UserFetcher はダッシュボードページが必要とするサービスインターフェース。
type UserFetcher interface {
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// PageHandler はサーバーレンダリングページのHTTPハンドラー。
type PageHandler struct {
	agents    AgentLister
	users     UserFetcher
	templates *template.Template
}

// NewPageHandler はPageHandlerを生成する。
// 埋め込みテンプレートのパースに失敗した場合はpanicする（起動時にのみ起こり得る）。
func NewPageHandler(agents AgentLister, users UserFetcher) *PageHandler {
	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
	return &PageHandler{
		agents:    agents,
		users:     users,
		templates: tmpl,
	}
}

// landingData はランディングページのテンプレートデータ。
type landingData struct {
	Title string
}

// authPageData はログイン・サインアップページのテンプレートデータ。
type authPageData struct {
	Title string
}

// dashboardData はダッシュボードページのテンプレートデータ。
type dashboardData struct {
	Title string
	User  *model.User
}

// agentsPageData はエージェント一覧ページのテンプレートデータ。
// LoadFailedは取得失敗を示す。0件の一覧と取得失敗を画面上で区別する。
type agentsPageData struct {
	Title      string
	Agents     []*model.Agent
	LoadFailed bool
}

// newAgentData は新規エージェント作成フォームのテンプレートデータ。
type newAgentData struct {
	Title string
	Type  string
}

// Landing はランディングページを表示する。
// GET /
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	// chiのNotFoundを通らないため、ルート以外はここで404を返す
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, "landing.html", landingData{Title: "agentdesk"})
}

// Login はログインページを表示する。
// GET /login
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", authPageData{Title: "ログイン"})
}

// Signup はサインアップページを表示する。
// GET /signup
func (h *PageHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signup.html", authPageData{Title: "新規登録"})
}

// Dashboard はダッシュボードページを表示する。
// GET /dashboard （ページガードの内側に配置する）
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	user, err := h.users.CurrentUser(r.Context(), userID)
	if err != nil {
		slog.Error("failed to load current user for dashboard", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	h.render(w, "dashboard.html", dashboardData{Title: "ダッシュボード", User: user})
}

// Agents はエージェント一覧ページを表示する。
// GET /agents （ページガードの内側に配置する）
// 一覧は名前昇順。取得失敗時は空一覧ではなくエラー状態を表示する。
func (h *PageHandler) Agents(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	data := agentsPageData{Title: "エージェント一覧"}

	agents, err := h.agents.ListByOwner(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list agents for page", slog.String("error", err.Error()))
		data.LoadFailed = true
	} else {
		data.Agents = agents
	}

	h.render(w, "agents.html", data)
}

// NewAgent は新規エージェント作成フォームを表示する。
// GET /agents/new?type=email|phone （ページガードの内側に配置する）
func (h *PageHandler) NewAgent(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("type")
	if agentType != string(model.AgentTypePhone) {
		agentType = string(model.AgentTypeEmail)
	}

	h.render(w, "agent_new.html", newAgentData{Title: "新規エージェント作成", Type: agentType})
}

// render はテンプレートを実行してレスポンスを書き込む。
func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

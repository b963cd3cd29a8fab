package handlers

import (
	"context"
	"net/http"
	"time"

	"alert-core/internal/core/datasource"
	"alert-core/internal/core/grouper"
	"alert-core/internal/core/silence"
	"alert-core/internal/kv"
	"alert-core/internal/models"
	"alert-core/internal/repository"
	"alert-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultTenantID is the single tenant the thin collaborator surface
// operates against. The core engine is multi-tenant end to end (every
// core_* row carries a tenant_id), but the teacher's JWT claims carry no
// tenant scoping, so every collaborator request is pinned to one tenant
// until a real multi-tenant login flow is added.
var defaultTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// RuleHandler is the thin CRUD surface for alert rules, plus the
// test-expression dry-run endpoint spec.md asks for.
type RuleHandler struct {
	rules *repository.RuleRepository
	ds    *repository.DataSourceRepository
}

func NewRuleHandler(rules *repository.RuleRepository, ds *repository.DataSourceRepository) *RuleHandler {
	return &RuleHandler{rules: rules, ds: ds}
}

type ruleRequest struct {
	Name               string             `json:"name" binding:"required"`
	Expression         string             `json:"expression" binding:"required"`
	EvalIntervalSecs   int                `json:"eval_interval_seconds"`
	ForDurationSecs    int                `json:"for_duration_seconds"`
	RepeatIntervalSecs int                `json:"repeat_interval_seconds"`
	Severity           string             `json:"severity" binding:"required"`
	Labels             map[string]string  `json:"labels"`
	Annotations        map[string]string  `json:"annotations"`
	Route              routeConfigRequest `json:"route_config"`
	DataSourceID       uuid.UUID          `json:"data_source_id" binding:"required"`
	Enabled            *bool              `json:"enabled"`
}

// routeConfigRequest mirrors models.RouteConfig but binds the two
// grouping flags as pointers so an omitted key can be told apart from
// an explicit false, defaulting both to true per the engine's grouped-
// delivery default.
type routeConfigRequest struct {
	GroupBy                []string    `json:"group_by"`
	NotificationChannels   []uuid.UUID `json:"notification_channels"`
	EnableGrouping         *bool       `json:"enable_grouping"`
	EnableRecoveryGrouping *bool       `json:"enable_recovery_grouping"`
}

func (r routeConfigRequest) toRouteConfig() models.RouteConfig {
	return models.RouteConfig{
		GroupBy:                r.GroupBy,
		NotificationChannels:   r.NotificationChannels,
		EnableGrouping:         boolOrDefault(r.EnableGrouping, true),
		EnableRecoveryGrouping: boolOrDefault(r.EnableRecoveryGrouping, true),
	}
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := models.Rule{
		ID:                 uuid.New(),
		TenantID:           defaultTenantID,
		Name:               req.Name,
		Expression:         req.Expression,
		EvalIntervalSecs:   orDefault(req.EvalIntervalSecs, 15),
		ForDurationSecs:    orDefault(req.ForDurationSecs, 60),
		RepeatIntervalSecs: orDefault(req.RepeatIntervalSecs, 3600),
		Severity:           req.Severity,
		Labels:             req.Labels,
		Annotations:        req.Annotations,
		Route:              req.Route.toRouteConfig(),
		DataSourceID:       req.DataSourceID,
		Enabled:            enabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, rule)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), defaultTenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, rules)
}

func (h *RuleHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	rule, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "rule not found")
		return
	}
	response.Success(c, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "rule not found")
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	existing.Name = req.Name
	existing.Expression = req.Expression
	existing.EvalIntervalSecs = orDefault(req.EvalIntervalSecs, existing.EvalIntervalSecs)
	existing.ForDurationSecs = orDefault(req.ForDurationSecs, existing.ForDurationSecs)
	existing.RepeatIntervalSecs = orDefault(req.RepeatIntervalSecs, existing.RepeatIntervalSecs)
	existing.Severity = req.Severity
	existing.Labels = req.Labels
	existing.Annotations = req.Annotations
	existing.Route = req.Route.toRouteConfig()
	existing.DataSourceID = req.DataSourceID
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()

	if err := h.rules.Update(c.Request.Context(), existing); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, existing)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, nil)
}

type testExpressionRequest struct {
	Expression   string    `json:"expression" binding:"required"`
	DataSourceID uuid.UUID `json:"data_source_id" binding:"required"`
}

// TestExpression runs a rule's expression against its data source once,
// outside the scheduler's evaluation loop, and returns the raw samples
// without touching any AlertEvent state.
func (h *RuleHandler) TestExpression(c *gin.Context) {
	var req testExpressionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ds, err := h.ds.GetByID(c.Request.Context(), req.DataSourceID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "data source not found")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	client := datasource.New(ds)
	results, err := client.Query(ctx, req.Expression, "")
	if err != nil {
		response.Error(c, http.StatusBadGateway, err.Error())
		return
	}
	response.Success(c, results)
}

// DataSourceHandler is the thin CRUD surface for data sources.
type DataSourceHandler struct {
	repo *repository.DataSourceRepository
}

func NewDataSourceHandler(repo *repository.DataSourceRepository) *DataSourceHandler {
	return &DataSourceHandler{repo: repo}
}

type dataSourceRequest struct {
	Name        string            `json:"name" binding:"required"`
	Kind        string            `json:"kind" binding:"required"`
	BaseURL     string            `json:"base_url" binding:"required"`
	Auth        models.AuthConfig `json:"auth_config"`
	HTTP        models.HTTPConfig `json:"http_config"`
	ExtraLabels map[string]string `json:"extra_labels"`
	Enabled     *bool             `json:"enabled"`
}

func (h *DataSourceHandler) Create(c *gin.Context) {
	var req dataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now()
	ds := models.DataSource{
		ID:          uuid.New(),
		TenantID:    defaultTenantID,
		Name:        req.Name,
		Kind:        req.Kind,
		BaseURL:     req.BaseURL,
		Auth:        req.Auth,
		HTTP:        req.HTTP,
		ExtraLabels: req.ExtraLabels,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repo.Create(c.Request.Context(), ds); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, ds)
}

func (h *DataSourceHandler) List(c *gin.Context) {
	sources, err := h.repo.List(c.Request.Context(), defaultTenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, sources)
}

func (h *DataSourceHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	ds, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "data source not found")
		return
	}
	response.Success(c, ds)
}

func (h *DataSourceHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "data source not found")
		return
	}
	var req dataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	existing.Name = req.Name
	existing.Kind = req.Kind
	existing.BaseURL = req.BaseURL
	existing.Auth = req.Auth
	existing.HTTP = req.HTTP
	existing.ExtraLabels = req.ExtraLabels
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()
	if err := h.repo.Update(c.Request.Context(), existing); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, existing)
}

func (h *DataSourceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, nil)
}

// SilenceHandler is the thin CRUD surface for silence rules.
type SilenceHandler struct {
	repo *repository.SilenceRepository
}

func NewSilenceHandler(repo *repository.SilenceRepository) *SilenceHandler {
	return &SilenceHandler{repo: repo}
}

type silenceRequest struct {
	Name      string           `json:"name"`
	Matchers  []models.Matcher `json:"matchers" binding:"required"`
	StartsAt  time.Time        `json:"starts_at" binding:"required"`
	EndsAt    time.Time        `json:"ends_at" binding:"required"`
	IsEnabled *bool            `json:"is_enabled"`
}

func (h *SilenceHandler) Create(c *gin.Context) {
	var req silenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := evaluatorValidateMatchers(req.Matchers); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	now := time.Now()
	s := models.SilenceRule{
		ID:        uuid.New(),
		TenantID:  defaultTenantID,
		Name:      req.Name,
		Matchers:  req.Matchers,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		IsEnabled: enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, s)
}

func (h *SilenceHandler) List(c *gin.Context) {
	silences, err := h.repo.List(c.Request.Context(), defaultTenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, silences)
}

func (h *SilenceHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req silenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := evaluatorValidateMatchers(req.Matchers); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	s := models.SilenceRule{
		ID:        id,
		TenantID:  defaultTenantID,
		Name:      req.Name,
		Matchers:  req.Matchers,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		IsEnabled: enabled,
		UpdatedAt: time.Now(),
	}
	if err := h.repo.Update(c.Request.Context(), s); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, s)
}

func (h *SilenceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, nil)
}

// ChannelHandler is the thin CRUD surface for notification channels.
type ChannelHandler struct {
	repo *repository.ChannelRepository
}

func NewChannelHandler(repo *repository.ChannelRepository) *ChannelHandler {
	return &ChannelHandler{repo: repo}
}

type channelRequest struct {
	Name      string                 `json:"name" binding:"required"`
	Kind      models.ChannelKind     `json:"kind" binding:"required"`
	Config    map[string]interface{} `json:"config"`
	Filter    models.FilterConfig    `json:"filter_config"`
	Enabled   *bool                  `json:"enabled"`
	IsDefault bool                   `json:"is_default"`
}

func (h *ChannelHandler) Create(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now()
	ch := models.NotificationChannel{
		ID:        uuid.New(),
		TenantID:  defaultTenantID,
		Name:      req.Name,
		Kind:      req.Kind,
		Config:    req.Config,
		Filter:    req.Filter,
		Enabled:   enabled,
		IsDefault: req.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.Create(c.Request.Context(), ch); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, ch)
}

func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.repo.List(c.Request.Context(), defaultTenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, channels)
}

func (h *ChannelHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	ch, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "channel not found")
		return
	}
	response.Success(c, ch)
}

func (h *ChannelHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusNotFound, "channel not found")
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	existing.Name = req.Name
	existing.Kind = req.Kind
	existing.Config = req.Config
	existing.Filter = req.Filter
	existing.IsDefault = req.IsDefault
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()
	if err := h.repo.Update(c.Request.Context(), existing); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, existing)
}

func (h *ChannelHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, nil)
}

// StatsHandler exposes the live grouper state (spec.md's /stats endpoint):
// how many groups are open, firing vs. recovery, and how many alerts are
// currently held inside them.
type StatsHandler struct {
	group *grouper.Grouper
}

func NewStatsHandler(store kv.GroupStore) *StatsHandler {
	return &StatsHandler{group: grouper.New(store)}
}

func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.group.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, stats)
}

func evaluatorValidateMatchers(matchers []models.Matcher) error {
	return silence.ValidateMatchers(matchers)
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenarioflow/internal/storage"
	"scenarioflow/pkg/api/dto"
	"scenarioflow/pkg/api/handlers"
	"scenarioflow/pkg/models"
)

type memScenarioRepo struct {
	mu        sync.Mutex
	scenarios map[string]*models.Scenario
}

func newMemScenarioRepo() *memScenarioRepo {
	return &memScenarioRepo{scenarios: make(map[string]*models.Scenario)}
}

func (r *memScenarioRepo) Create(ctx context.Context, s *models.Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	cp := *s
	r.scenarios[s.ID] = &cp
	return nil
}

func (r *memScenarioRepo) Get(ctx context.Context, id string) (*models.Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenarios[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memScenarioRepo) List(ctx context.Context, filters storage.ScenarioFilters) ([]*models.Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Scenario
	for _, s := range r.scenarios {
		if filters.OwnerID != "" && s.OwnerID != filters.OwnerID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memScenarioRepo) Replace(ctx context.Context, s *models.Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenarios[s.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *s
	r.scenarios[s.ID] = &cp
	return nil
}

func (r *memScenarioRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenarios[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.scenarios, id)
	return nil
}

func (r *memScenarioRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenarios[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.IsActive = active
	return nil
}

func setupRouter(repo storage.ScenarioRepository, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := handlers.NewScenarioHandler(repo, nil, log)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	router.POST("/api/v1/scenarios", h.CreateScenario)
	router.GET("/api/v1/scenarios", h.ListScenarios)
	router.GET("/api/v1/scenarios/:id", h.GetScenario)
	router.PUT("/api/v1/scenarios/:id", h.ReplaceScenario)
	router.DELETE("/api/v1/scenarios/:id", h.DeleteScenario)
	router.POST("/api/v1/scenarios/:id/active", h.SetActive)
	return router
}

func validSaveRequest() dto.SaveScenarioRequest {
	return dto.SaveScenarioRequest{
		Name:     "morning routine",
		Schedule: "0 9 * * 1,2,3",
		Nodes: []models.Node{
			{ID: "start", Kind: models.NodeKindStart},
			{ID: "n1", Kind: models.NodeKindAction, Action: &models.ActionData{Type: models.ActionLikeFeed}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "n1"},
		},
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateScenario_Valid(t *testing.T) {
	repo := newMemScenarioRepo()
	router := setupRouter(repo, "alice")

	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", validSaveRequest())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.ScenarioResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "morning routine", resp.Name)
	assert.Equal(t, "0 9 * * 1,2,3", resp.Schedule)

	stored, err := repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.OwnerID)
}

func TestCreateScenario_InvalidGraphReturnsAllErrors(t *testing.T) {
	router := setupRouter(newMemScenarioRepo(), "alice")

	// no start node, an orphan, and an unknown action type
	req := dto.SaveScenarioRequest{
		Name: "broken",
		Nodes: []models.Node{
			{ID: "n1", Kind: models.NodeKindAction, Action: &models.ActionData{Type: "teleport"}},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, len(resp.Errors), 2, "all findings must be reported together")

	codes := make(map[string]bool)
	for _, e := range resp.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes["no_start"], "missing no_start finding: %v", resp.Errors)
	assert.True(t, codes["unknown_action"], "missing unknown_action finding: %v", resp.Errors)
}

func TestCreateScenario_BadSchedule(t *testing.T) {
	router := setupRouter(newMemScenarioRepo(), "alice")

	req := validSaveRequest()
	req.Schedule = "not a cron"
	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetScenario_ForeignReadsAsNotFound(t *testing.T) {
	repo := newMemScenarioRepo()
	s := models.NewScenario(uuid.New().String(), "bob", "bob's scenario")
	require.NoError(t, repo.Create(context.Background(), s))

	router := setupRouter(repo, "alice")
	w := doJSON(t, router, http.MethodGet, "/api/v1/scenarios/"+s.ID, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplaceScenario_KeepsIdentity(t *testing.T) {
	repo := newMemScenarioRepo()
	router := setupRouter(repo, "alice")

	created := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", validSaveRequest())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp dto.ScenarioResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	update := validSaveRequest()
	update.Name = "evening routine"
	w := doJSON(t, router, http.MethodPut, "/api/v1/scenarios/"+resp.ID, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "evening routine", stored.Name)
	assert.Equal(t, "alice", stored.OwnerID)
}

func TestSetActive_Toggles(t *testing.T) {
	repo := newMemScenarioRepo()
	router := setupRouter(repo, "alice")

	created := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", validSaveRequest())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp dto.ScenarioResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios/"+resp.ID+"/active", dto.SetActiveRequest{IsActive: true})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

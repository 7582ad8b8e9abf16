package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"scenarioflow/internal/graph"
	"scenarioflow/internal/schedule"
	"scenarioflow/internal/storage"
	"scenarioflow/pkg/api/dto"
	"scenarioflow/pkg/api/middleware"
	"scenarioflow/pkg/models"
)

// ScenarioHandler handles scenario-related HTTP requests
type ScenarioHandler struct {
	repo      storage.ScenarioRepository
	validator *graph.Validator
	scheduler *schedule.Scheduler
	log       *logrus.Logger
}

// NewScenarioHandler creates a new scenario handler
func NewScenarioHandler(repo storage.ScenarioRepository, scheduler *schedule.Scheduler, log *logrus.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		repo:      repo,
		validator: graph.NewValidator(),
		scheduler: scheduler,
		log:       log,
	}
}

// CreateScenario handles POST /api/v1/scenarios
// @Summary Create a new scenario
// @Description Validate and persist a scenario graph
// @Tags scenarios
// @Accept json
// @Produce json
// @Param scenario body dto.SaveScenarioRequest true "Scenario definition"
// @Success 201 {object} dto.ScenarioResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/scenarios [post]
func (h *ScenarioHandler) CreateScenario(c *gin.Context) {
	var req dto.SaveScenarioRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	scenario, err := req.ToScenario()
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "INVALID_SCHEDULE", err.Error())
		return
	}
	scenario.OwnerID = middleware.UserID(c)

	if !h.validGraph(c, scenario) {
		return
	}

	if err := h.repo.Create(c.Request.Context(), scenario); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}

	h.reschedule(scenario)
	c.JSON(http.StatusCreated, dto.ToScenarioResponse(scenario))
}

// ListScenarios handles GET /api/v1/scenarios
// @Summary List scenarios
// @Description Get the caller's scenarios
// @Tags scenarios
// @Produce json
// @Success 200 {object} dto.ScenarioListResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/scenarios [get]
func (h *ScenarioHandler) ListScenarios(c *gin.Context) {
	filters := storage.ScenarioFilters{OwnerID: middleware.UserID(c)}

	scenarios, err := h.repo.List(c.Request.Context(), filters)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	resp := dto.ScenarioListResponse{Scenarios: make([]dto.ScenarioResponse, len(scenarios))}
	for i, s := range scenarios {
		resp.Scenarios[i] = dto.ToScenarioResponse(s)
	}
	c.JSON(http.StatusOK, resp)
}

// GetScenario handles GET /api/v1/scenarios/:id
// @Summary Get a scenario
// @Tags scenarios
// @Produce json
// @Param id path string true "Scenario ID"
// @Success 200 {object} dto.ScenarioResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/scenarios/{id} [get]
func (h *ScenarioHandler) GetScenario(c *gin.Context) {
	scenario, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.ToScenarioResponse(scenario))
}

// ReplaceScenario handles PUT /api/v1/scenarios/:id
// @Summary Replace a scenario
// @Description Whole-document save; the request carries the full graph
// @Tags scenarios
// @Accept json
// @Produce json
// @Param id path string true "Scenario ID"
// @Param scenario body dto.SaveScenarioRequest true "Scenario definition"
// @Success 200 {object} dto.ScenarioResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/scenarios/{id} [put]
func (h *ScenarioHandler) ReplaceScenario(c *gin.Context) {
	existing, ok := h.owned(c)
	if !ok {
		return
	}

	var req dto.SaveScenarioRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	scenario, err := req.ToScenario()
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "INVALID_SCHEDULE", err.Error())
		return
	}
	scenario.ID = existing.ID
	scenario.OwnerID = existing.OwnerID

	if !h.validGraph(c, scenario) {
		return
	}

	if err := h.repo.Replace(c.Request.Context(), scenario); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "UPDATE_FAILED", err.Error())
		return
	}

	h.reschedule(scenario)
	c.JSON(http.StatusOK, dto.ToScenarioResponse(scenario))
}

// DeleteScenario handles DELETE /api/v1/scenarios/:id
// @Summary Delete a scenario
// @Tags scenarios
// @Param id path string true "Scenario ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/scenarios/{id} [delete]
func (h *ScenarioHandler) DeleteScenario(c *gin.Context) {
	scenario, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), scenario.ID); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}

	if h.scheduler != nil {
		h.scheduler.Unregister(scenario.ID)
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "Scenario deleted"})
}

// SetActive handles POST /api/v1/scenarios/:id/active
// @Summary Toggle scenario automation
// @Tags scenarios
// @Accept json
// @Produce json
// @Param id path string true "Scenario ID"
// @Param body body dto.SetActiveRequest true "Activation flag"
// @Success 200 {object} dto.ScenarioResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/scenarios/{id}/active [post]
func (h *ScenarioHandler) SetActive(c *gin.Context) {
	scenario, ok := h.owned(c)
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	if err := h.repo.SetActive(c.Request.Context(), scenario.ID, req.IsActive); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "UPDATE_FAILED", err.Error())
		return
	}

	scenario.IsActive = req.IsActive
	h.reschedule(scenario)
	c.JSON(http.StatusOK, dto.ToScenarioResponse(scenario))
}

// validGraph runs full graph validation; on findings it responds 400
// with every error so the editor can annotate all of them at once.
func (h *ScenarioHandler) validGraph(c *gin.Context, scenario *models.Scenario) bool {
	if errs := h.validator.Validate(scenario); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, dto.ValidationErrorResponse{
			Error:  "Scenario graph is invalid",
			Errors: dto.ToGraphErrorDTOs(errs),
		})
		c.Abort()
		return false
	}
	return true
}

// owned loads the path scenario and checks it belongs to the caller.
// Foreign scenarios read as not found.
func (h *ScenarioHandler) owned(c *gin.Context) (*models.Scenario, bool) {
	scenario, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Scenario not found")
		} else {
			middleware.AbortWithError(c, http.StatusInternalServerError, "GET_FAILED", err.Error())
		}
		return nil, false
	}
	if scenario.OwnerID != middleware.UserID(c) {
		middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Scenario not found")
		return nil, false
	}
	return scenario, true
}

// reschedule syncs the cron registration with the saved document
func (h *ScenarioHandler) reschedule(scenario *models.Scenario) {
	if h.scheduler == nil {
		return
	}
	// registration failures must not fail the save
	if err := h.scheduler.Replace(scenario); err != nil {
		h.log.WithField("scenario", scenario.ID).WithError(err).Warn("failed to reschedule scenario")
	}
}

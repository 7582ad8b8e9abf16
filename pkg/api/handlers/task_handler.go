package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scenarioflow/internal/dispatch"
	"scenarioflow/internal/state"
	"scenarioflow/internal/storage"
	"scenarioflow/pkg/api/dto"
	"scenarioflow/pkg/api/middleware"
	"scenarioflow/pkg/models"
)

// TaskHandler handles task history and execution HTTP requests
type TaskHandler struct {
	taskRepo     storage.TaskHistoryRepository
	scenarioRepo storage.ScenarioRepository
	dispatcher   *dispatch.Dispatcher
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskRepo storage.TaskHistoryRepository, scenarioRepo storage.ScenarioRepository, dispatcher *dispatch.Dispatcher) *TaskHandler {
	return &TaskHandler{
		taskRepo:     taskRepo,
		scenarioRepo: scenarioRepo,
		dispatcher:   dispatcher,
	}
}

// ListTaskHistory handles GET /api/v1/tasks
// @Summary List task history
// @Description Get a paginated page of the caller's task history
// @Tags tasks
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.TaskHistoryListResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/tasks [get]
func (h *TaskHandler) ListTaskHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filters := storage.TaskHistoryFilters{
		OwnerID:  middleware.UserID(c),
		Page:     page,
		PageSize: pageSize,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.TaskStatus(statusStr)
		if !status.IsValid() {
			middleware.AbortWithError(c, http.StatusBadRequest, "INVALID_STATUS", "Unknown task status "+statusStr)
			return
		}
		filters.Status = &status
	}

	entries, total, err := h.taskRepo.List(c.Request.Context(), filters)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	resp := dto.TaskHistoryListResponse{
		Entries:    make([]dto.TaskHistoryEntryResponse, len(entries)),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}
	for i, e := range entries {
		resp.Entries[i] = dto.ToTaskHistoryEntryResponse(e)
	}
	c.JSON(http.StatusOK, resp)
}

// LaunchAction handles POST /api/v1/tasks
// @Summary Launch a single action
// @Description Run one action immediately, outside any scenario
// @Tags tasks
// @Accept json
// @Produce json
// @Param action body dto.LaunchActionRequest true "Action to run"
// @Success 202 {object} dto.TaskHistoryEntryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/tasks [post]
func (h *TaskHandler) LaunchAction(c *gin.Context) {
	var req dto.LaunchActionRequest
	if !middleware.BindAndValidate(c, &req) {
		return
	}

	action := req.ToActionData()
	if !action.Type.IsValid() {
		middleware.AbortWithError(c, http.StatusBadRequest, "UNKNOWN_ACTION", "Unknown action type "+req.Type)
		return
	}

	entry, err := h.dispatcher.LaunchAction(c.Request.Context(), middleware.UserID(c), action)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "LAUNCH_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, dto.ToTaskHistoryEntryResponse(entry))
}

// CancelTask handles POST /api/v1/tasks/:id/cancel
// @Summary Cancel a task
// @Description Cancel a pending, started or retrying task
// @Tags tasks
// @Produce json
// @Param id path string true "Task entry ID"
// @Success 200 {object} dto.TaskHistoryEntryResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/tasks/{id}/cancel [post]
func (h *TaskHandler) CancelTask(c *gin.Context) {
	if !h.owns(c) {
		return
	}

	entry, err := h.dispatcher.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotCancellable) {
			middleware.AbortWithError(c, http.StatusConflict, "NOT_CANCELLABLE", err.Error())
			return
		}
		middleware.AbortWithError(c, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskHistoryEntryResponse(entry))
}

// RetryTask handles POST /api/v1/tasks/:id/retry
// @Summary Retry a failed task
// @Tags tasks
// @Produce json
// @Param id path string true "Task entry ID"
// @Success 200 {object} dto.TaskHistoryEntryResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/tasks/{id}/retry [post]
func (h *TaskHandler) RetryTask(c *gin.Context) {
	if !h.owns(c) {
		return
	}

	entry, err := h.dispatcher.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotRetryable) {
			middleware.AbortWithError(c, http.StatusConflict, "NOT_RETRYABLE", err.Error())
			return
		}
		middleware.AbortWithError(c, http.StatusInternalServerError, "RETRY_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskHistoryEntryResponse(entry))
}

// RunScenario handles POST /api/v1/scenarios/:id/run
// @Summary Run a scenario now
// @Description Compile the scenario and start a run, ignoring its schedule
// @Tags scenarios
// @Produce json
// @Param id path string true "Scenario ID"
// @Success 202 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/scenarios/{id}/run [post]
func (h *TaskHandler) RunScenario(c *gin.Context) {
	scenario, err := h.scenarioRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Scenario not found")
			return
		}
		middleware.AbortWithError(c, http.StatusInternalServerError, "GET_FAILED", err.Error())
		return
	}
	if scenario.OwnerID != middleware.UserID(c) {
		middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Scenario not found")
		return
	}

	if err := h.dispatcher.RunScenario(c.Request.Context(), scenario); err != nil {
		if errors.Is(err, dispatch.ErrRunActive) {
			middleware.AbortWithError(c, http.StatusConflict, "RUN_ACTIVE", err.Error())
			return
		}
		middleware.AbortWithError(c, http.StatusBadRequest, "RUN_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, dto.SuccessResponse{Success: true, Message: "Scenario run started"})
}

// owns checks the path entry belongs to the caller. Foreign entries
// read as not found.
func (h *TaskHandler) owns(c *gin.Context) bool {
	entry, err := h.taskRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Task entry not found")
		} else {
			middleware.AbortWithError(c, http.StatusInternalServerError, "GET_FAILED", err.Error())
		}
		return false
	}
	if entry.OwnerID != middleware.UserID(c) {
		middleware.AbortWithError(c, http.StatusNotFound, "NOT_FOUND", "Task entry not found")
		return false
	}
	return true
}

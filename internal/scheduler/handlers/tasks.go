package handlers

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/internal/scheduler/services"
	"NetCollect/pkg/uuidutil"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateTask создает задачу сбора; без расписания задача одноразовая
func (h *Handlers) CreateTask(c *gin.Context) {
	var req struct {
		Name           string                 `json:"name" binding:"required"`
		ServerID       string                 `json:"server_id" binding:"required"`
		TaskType       models.TaskType        `json:"task_type" binding:"required"`
		Operation      json.RawMessage        `json:"operation" binding:"required"`
		Schedule       *models.ScheduleConfig `json:"schedule_config"`
		TimeoutSeconds int                    `json:"timeout_seconds"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Name, server_id, task_type and operation are required"))
		return
	}

	op, err := models.ParseOperation(req.TaskType, req.Operation)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return
	}

	server, err := h.servers.GetByID(c.Request.Context(), req.ServerID)
	if err != nil {
		h.logger.Error("failed to resolve server for task", "error", err, "server_id", req.ServerID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("create_failed", "Failed to resolve server"))
		return
	}
	if server == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Server not found"))
		return
	}

	now := time.Now()
	task := &models.CollectionTask{
		ID:             uuidutil.New(),
		Name:           req.Name,
		ServerID:       req.ServerID,
		TaskType:       req.TaskType,
		Operation:      op,
		Schedule:       req.Schedule,
		Status:         models.TaskStatusActive,
		TimeoutSeconds: req.TimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return
	}

	if err := h.tasks.Create(c.Request.Context(), task); err != nil {
		h.logger.Error("failed to create task", "error", err, "name", req.Name)
		c.JSON(http.StatusInternalServerError, ErrorResponse("create_failed", err.Error()))
		return
	}

	h.logger.Info("task created", "task_id", task.ID, "type", task.TaskType, "server_id", task.ServerID)
	c.JSON(http.StatusCreated, SuccessResponse("task_created", gin.H{
		"task_id": task.ID,
		"task":    task,
	}))
}

// GetTask возвращает информацию о задаче
func (h *Handlers) GetTask(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.tasks.GetByID(c.Request.Context(), taskID)
	if err != nil {
		h.logger.Error("failed to get task", "error", err, "task_id", taskID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get task"))
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Task not found"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("task_found", gin.H{
		"task": task,
	}))
}

// ListTasks возвращает список задач
func (h *Handlers) ListTasks(c *gin.Context) {
	limit, offset := pagination(c)

	tasks, err := h.tasks.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list tasks"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("tasks_list", gin.H{
		"tasks":  tasks,
		"count":  len(tasks),
		"limit":  limit,
		"offset": offset,
	}))
}

// GetTaskResults возвращает последние результаты задачи
func (h *Handlers) GetTaskResults(c *gin.Context) {
	taskID := c.Param("id")
	limit, _ := pagination(c)

	results, err := h.results.ListByTask(c.Request.Context(), taskID, limit)
	if err != nil {
		h.logger.Error("failed to get task results", "error", err, "task_id", taskID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get task results"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("results_found", gin.H{
		"task_id": taskID,
		"results": results,
		"count":   len(results),
	}))
}

// RunTask запускает задачу вне расписания
func (h *Handlers) RunTask(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.tasks.GetByID(c.Request.Context(), taskID)
	if err != nil {
		h.logger.Error("failed to get task for run", "error", err, "task_id", taskID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("run_failed", "Failed to get task"))
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Task not found"))
		return
	}

	// выполнение переживает HTTP-запрос
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := h.dispatcher.Dispatch(ctx, task); err != nil {
			if errors.Is(err, services.ErrConcurrentDispatch) {
				return
			}
			h.logger.Error("manual dispatch failed", "task_id", task.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, SuccessResponse("task_accepted", gin.H{
		"task_id": taskID,
	}))
}

// SetTaskStatus переводит задачу между active и inactive,
// либо возвращает failed обратно в active
func (h *Handlers) SetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	var req struct {
		Status models.TaskStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Status is required"))
		return
	}
	if req.Status != models.TaskStatusActive && req.Status != models.TaskStatusInactive {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Only active and inactive can be set"))
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), taskID)
	if err != nil {
		h.logger.Error("failed to get task", "error", err, "task_id", taskID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("update_failed", "Failed to get task"))
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Task not found"))
		return
	}

	if !task.Status.CanTransition(req.Status) {
		c.JSON(http.StatusConflict, ErrorResponse("conflict", "Transition not allowed from "+string(task.Status)))
		return
	}

	ok, err := h.tasks.CompareAndSetStatus(c.Request.Context(), taskID, task.Status, req.Status)
	if err != nil {
		h.logger.Error("failed to update task status", "error", err, "task_id", taskID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("update_failed", err.Error()))
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, ErrorResponse("conflict", "Task status changed concurrently"))
		return
	}

	prev := task.Status

	// реактивация сбросившейся задачи начинает отсчет сбоев заново
	if prev == models.TaskStatusFailed && req.Status == models.TaskStatusActive {
		task.Status = req.Status
		task.ConsecutiveFailures = 0
		if err := h.tasks.Update(c.Request.Context(), task); err != nil {
			h.logger.Warn("failed to reset failure counter", "task_id", taskID, "error", err)
		}
	}

	h.logger.Info("task status updated", "task_id", taskID, "from", prev, "to", req.Status)
	c.JSON(http.StatusOK, SuccessResponse("status_updated", gin.H{
		"task_id": taskID,
		"status":  req.Status,
	}))
}

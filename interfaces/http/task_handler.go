package http

import (
	"net/http"
	"strconv"

	"reelpipe/domain/dto"
	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"
	"reelpipe/usecase"

	"github.com/gin-gonic/gin"
)

const ErrorBind = "Error while binding request"

type ITaskHandler interface {
	TriggerFetch(c *gin.Context)
	TriggerUpload(c *gin.Context)
	List(c *gin.Context)
	Stats(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	Delete(c *gin.Context)
	Cleanup(c *gin.Context)
	Dashboard(c *gin.Context)
}

type TaskHandler struct {
	taskUsecase usecase.ITaskUsecase
}

func NewTaskHandler(taskUsecase usecase.ITaskUsecase) ITaskHandler {
	return &TaskHandler{taskUsecase: taskUsecase}
}

func (h *TaskHandler) TriggerFetch(c *gin.Context) {
	var req dto.FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Warn(ErrorBind)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.taskUsecase.TriggerFetch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *TaskHandler) TriggerUpload(c *gin.Context) {
	var req dto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Warn(ErrorBind)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.taskUsecase.TriggerUpload(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// List handles GET /tasks?status=&type=&limit=
func (h *TaskHandler) List(c *gin.Context) {
	filter := model.TaskFilter{
		Status: model.TaskStatus(c.Query("status")),
		Kind:   model.TaskKind(c.Query("type")),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		filter.Limit = n
	}
	res, err := h.taskUsecase.ListTasks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TaskHandler) Stats(c *gin.Context) {
	res, err := h.taskUsecase.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get serves both /tasks/:id and /tasks/:id/progress.
func (h *TaskHandler) Get(c *gin.Context) {
	res, err := h.taskUsecase.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TaskHandler) Cancel(c *gin.Context) {
	res, err := h.taskUsecase.CancelTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.taskUsecase.DeleteTask(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id, "message": "Task deleted"})
}

func (h *TaskHandler) Cleanup(c *gin.Context) {
	days := 0
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}
	res, err := h.taskUsecase.Cleanup(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TaskHandler) Dashboard(c *gin.Context) {
	res, err := h.taskUsecase.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

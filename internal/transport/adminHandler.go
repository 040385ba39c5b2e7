package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/service"
)

// AdminHandler exposes cache eviction, background tasks and health.
type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// SuccessResponse is the JSON success envelope.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// EvictIdentifier handles DELETE /admin/cache/:identifier
func (h *AdminHandler) EvictIdentifier(c *gin.Context) {
	meta, err := entity.ParseMetaIdentifier(c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.admin.EvictIdentifier(c.Request.Context(), meta.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "cache entries evicted",
	})
}

type submitTaskRequest struct {
	Name       string `json:"name" binding:"required"`
	Identifier string `json:"identifier"`
}

type taskResponse struct {
	ID      uuid.UUID  `json:"id"`
	Name    string     `json:"name"`
	Status  string     `json:"status"`
	Queued  *time.Time `json:"queued,omitempty"`
	Started *time.Time `json:"started,omitempty"`
	Stopped *time.Time `json:"stopped,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func toTaskResponse(t *async.Task) taskResponse {
	resp := taskResponse{
		ID:     t.ID(),
		Name:   t.Name(),
		Status: t.Status().String(),
	}
	if v := t.InstantQueued(); !v.IsZero() {
		resp.Queued = &v
	}
	if v := t.InstantStarted(); !v.IsZero() {
		resp.Started = &v
	}
	if v := t.InstantStopped(); !v.IsZero() {
		resp.Stopped = &v
	}
	if err := t.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// SubmitTask handles POST /admin/tasks
func (h *AdminHandler) SubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	task, err := h.admin.SubmitTask(req.Name, entity.Identifier(req.Identifier))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, toTaskResponse(task))
}

// GetTask handles GET /admin/tasks/:id
func (h *AdminHandler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid task id"})
		return
	}
	task, ok := h.admin.Task(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "task not found"})
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(task))
}

// GetTasks handles GET /admin/tasks
func (h *AdminHandler) GetTasks(c *gin.Context) {
	tasks := h.admin.Tasks()
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

// GetHealth handles GET /admin/health?mode=concurrent|serial
func (h *AdminHandler) GetHealth(c *gin.Context) {
	concurrent := c.DefaultQuery("mode", "concurrent") == "concurrent"
	health := h.admin.Health(c.Request.Context(), concurrent)

	status := http.StatusOK
	if health.Color() == entity.HealthRed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"color":   health.Color().String(),
		"message": health.Message(),
	})
}

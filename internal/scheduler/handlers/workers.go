package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListWorkers возвращает живых воркеров и их загрузку
func (h *Handlers) ListWorkers(c *gin.Context) {
	workers := h.placement.Workers()

	c.JSON(http.StatusOK, SuccessResponse("workers_list", gin.H{
		"workers": workers,
		"count":   len(workers),
	}))
}

// ListSessions возвращает активные сессии пула соединений
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListConnected(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list sessions"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("sessions_list", gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	}))
}

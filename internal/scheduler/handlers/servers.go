package handlers

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/pkg/uuidutil"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateServer регистрирует целевой сервер
func (h *Handlers) CreateServer(c *gin.Context) {
	var req struct {
		Name           string                `json:"name" binding:"required"`
		Host           string                `json:"host" binding:"required"`
		Port           int                   `json:"port"`
		Username       string                `json:"username"`
		Password       string                `json:"password"`
		ProtocolType   models.ProtocolType   `json:"protocol_type" binding:"required"`
		DeviceType     string                `json:"device_type"`
		ManagementType models.ManagementType `json:"management_type"`
		Description    string                `json:"description"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Name, host and protocol_type are required"))
		return
	}

	if !models.ValidProtocol(req.ProtocolType) {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Unknown protocol type"))
		return
	}

	if req.Port == 0 {
		req.Port = defaultPort(req.ProtocolType)
	}
	if req.ManagementType == "" {
		req.ManagementType = models.ManagementScheduled
	}

	now := time.Now()
	server := &models.Server{
		ID:             uuidutil.New(),
		Name:           req.Name,
		Host:           req.Host,
		Port:           req.Port,
		Username:       req.Username,
		Password:       req.Password,
		ProtocolType:   req.ProtocolType,
		DeviceType:     req.DeviceType,
		ManagementType: req.ManagementType,
		Status:         models.ServerStatusActive,
		Description:    req.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.servers.Create(c.Request.Context(), server); err != nil {
		h.logger.Error("failed to create server", "error", err, "host", req.Host)
		c.JSON(http.StatusInternalServerError, ErrorResponse("create_failed", err.Error()))
		return
	}

	h.logger.Info("server created", "server_id", server.ID, "host", server.Host, "protocol", server.ProtocolType)
	c.JSON(http.StatusCreated, SuccessResponse("server_created", gin.H{
		"server_id": server.ID,
		"server":    server,
	}))
}

// GetServer возвращает информацию о сервере
func (h *Handlers) GetServer(c *gin.Context) {
	serverID := c.Param("id")

	server, err := h.servers.GetByID(c.Request.Context(), serverID)
	if err != nil {
		h.logger.Error("failed to get server", "error", err, "server_id", serverID)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get server"))
		return
	}
	if server == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Server not found"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("server_found", gin.H{
		"server": server,
	}))
}

// ListServers возвращает список серверов
func (h *Handlers) ListServers(c *gin.Context) {
	limit, offset := pagination(c)

	servers, err := h.servers.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list servers", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list servers"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("servers_list", gin.H{
		"servers": servers,
		"count":   len(servers),
		"limit":   limit,
		"offset":  offset,
	}))
}

func defaultPort(protocol models.ProtocolType) int {
	switch protocol {
	case models.ProtocolSNMP:
		return 161
	case models.ProtocolAPI:
		return 443
	default:
		return 22
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

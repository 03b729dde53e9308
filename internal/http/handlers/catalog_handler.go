package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// CatalogHandler обслуживает каталог услуг.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler создаёт хэндлер каталога.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// CreateService POST /services
func (h *CatalogHandler) CreateService(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Title       string  `json:"title" binding:"required"`
		Description string  `json:"description"`
		Price       float64 `json:"price" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "название и положительная цена обязательны")
		return
	}

	created, err := h.catalog.CreateService(c.Request.Context(), userID, role, service.CreateServiceInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetService GET /services/:id
func (h *CatalogHandler) GetService(c *gin.Context) {
	serviceID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	found, err := h.catalog.GetService(c.Request.Context(), serviceID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, found)
}

// ListServices GET /services
func (h *CatalogHandler) ListServices(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	services, err := h.catalog.ListServices(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"services": services})
}

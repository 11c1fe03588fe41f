package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/internal/services"
	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/response"
)

// ResidentHandler exposes resident profiles and the panic roster.
type ResidentHandler struct {
	service *services.ResidentService
}

// NewResidentHandler constructs a resident handler.
func NewResidentHandler(db *gorm.DB, hub *realtime.Hub) (*ResidentHandler, error) {
	service, err := services.NewResidentService(db, hub)
	if err != nil {
		return nil, err
	}
	return &ResidentHandler{service: service}, nil
}

// CreateResidentRequest registers a community member.
type CreateResidentRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=128"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"max=32"`
	Unit          string `json:"unit" validate:"max=32"`
	PanicEnrolled *bool  `json:"panic_enrolled"`
}

// Create registers a resident.
func (h *ResidentHandler) Create(c *gin.Context) {
	var req CreateResidentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dto, err := h.service.Create(c.Request.Context(), services.CreateResidentInput{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Unit:          req.Unit,
		PanicEnrolled: req.PanicEnrolled,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// Get returns a single resident profile.
func (h *ResidentHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	dto, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Me returns the current user's profile.
func (h *ResidentHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	dto, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Roster returns the enrolled, active residents with presence. This is the
// same eligibility set notify-all alerts snapshot at dispatch time.
func (h *ResidentHandler) Roster(c *gin.Context) {
	items, err := h.service.RosterEntries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

package handler

import (
	"net/http"

	"clinicrx/internal/dto"
	"clinicrx/internal/service"

	"github.com/gin-gonic/gin"
)

type PrescriptionsHandler struct{ svc service.PrescriptionService }

func NewPrescriptionsHandler(svc service.PrescriptionService) *PrescriptionsHandler {
	return &PrescriptionsHandler{svc: svc}
}

// Create godoc
// @Summary      Write a prescription
// @Description  Lines reference a catalog medicine or name an external one. Availability is a snapshot; no stock is reserved.
// @Tags         prescriptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreatePrescriptionRequest true "Prescription"
// @Success      201  {object} dto.PrescriptionResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/prescriptions [post]
func (h *PrescriptionsHandler) Create(c *gin.Context) {
	var req dto.CreatePrescriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List prescriptions
// @Tags         prescriptions
// @Produce      json
// @Security     BearerAuth
// @Param        status     query string false "pending | fulfilled | cancelled"
// @Param        patient_id query string false "patient id"
// @Param        visit_id   query string false "visit id"
// @Success      200 {object} dto.PrescriptionListResponse
// @Router       /v1/prescriptions [get]
func (h *PrescriptionsHandler) List(c *gin.Context) {
	var filter dto.PrescriptionFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a prescription
// @Tags         prescriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "prescription id"
// @Success      200 {object} dto.PrescriptionResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/prescriptions/{id} [get]
func (h *PrescriptionsHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Fulfill godoc
// @Summary      Dispense a pending prescription
// @Description  Re-checks stock for every catalog line and depletes FIFO; all lines or none.
// @Tags         prescriptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "prescription id"
// @Success      200 {object} dto.PrescriptionResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/prescriptions/{id}/fulfill [post]
func (h *PrescriptionsHandler) Fulfill(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Fulfill(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary      Cancel a pending prescription
// @Tags         prescriptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                          true "prescription id"
// @Param        body body dto.CancelPrescriptionRequest    true "Reason"
// @Success      200 {object} dto.PrescriptionResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/prescriptions/{id}/cancel [post]
func (h *PrescriptionsHandler) Cancel(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelPrescriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Cancel(c.Request.Context(), actorFrom(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

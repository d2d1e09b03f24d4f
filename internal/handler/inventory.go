package handler

import (
	"net/http"
	"time"

	"clinicrx/internal/apierror"
	"clinicrx/internal/dto"
	"clinicrx/internal/service"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct{ svc service.InventoryService }

func NewInventoryHandler(svc service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// GetMedicine godoc
// @Summary      Get a medicine with its available stock
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "medicine id"
// @Success      200 {object} dto.MedicineResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/medicines/{id} [get]
func (h *InventoryHandler) GetMedicine(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetMedicine(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListBatches godoc
// @Summary      List batches of a medicine in FIFO order
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  string true  "medicine id"
// @Param        active query bool   false "only batches that can still be drawn from"
// @Success      200 {array} dto.BatchResponse
// @Router       /v1/medicines/{id}/batches [get]
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListBatches(c.Request.Context(), id, c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReceiveBatch godoc
// @Summary      Stock in a new batch
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "medicine id"
// @Param        body body dto.ReceiveBatchRequest true "Batch"
// @Success      201 {object} dto.BatchResponse
// @Router       /v1/medicines/{id}/batches [post]
func (h *InventoryHandler) ReceiveBatch(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ReceiveBatch(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Alerts godoc
// @Summary      Medicines at or below their reorder threshold
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} dto.LowStockAlert
// @Router       /v1/inventory/alerts [get]
func (h *InventoryHandler) Alerts(c *gin.Context) {
	resp, err := h.svc.LowStockAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Movements godoc
// @Summary      Stock movement ledger
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        medicine_id  query string false "medicine id"
// @Param        reference_id query string false "sale or prescription id"
// @Param        kind         query string false "stock_in | sale | prescription | expiry"
// @Success      200 {object} dto.MovementListResponse
// @Router       /v1/inventory/movements [get]
func (h *InventoryHandler) Movements(c *gin.Context) {
	var filter dto.MovementFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListMovements(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Expire godoc
// @Summary      Run the expiry sweep
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        as_of query string false "YYYY-MM-DD (default today)"
// @Success      200 {object} dto.ExpirySweepResponse
// @Router       /v1/inventory/expire [post]
func (h *InventoryHandler) Expire(c *gin.Context) {
	asOf := time.Now()
	if v := c.Query("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.WithCode(string(service.CodeInvalidArgument), "as_of must be YYYY-MM-DD"))
			return
		}
		asOf = t
	}
	resp, err := h.svc.ExpireBatches(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

package handler

import (
	"net/http"

	"clinicrx/internal/dto"
	"clinicrx/internal/service"

	"github.com/gin-gonic/gin"
)

type SalesHandler struct {
	sales    service.SaleService
	receipts service.ReceiptService
}

func NewSalesHandler(sales service.SaleService, receipts service.ReceiptService) *SalesHandler {
	return &SalesHandler{sales: sales, receipts: receipts}
}

// Checkout godoc
// @Summary      Checkout a cart
// @Description  Validates stock, prices the sale (VAT, senior/PWD discount) and depletes batches FIFO in one transaction.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CheckoutRequest true "Cart"
// @Success      201  {object} dto.SaleResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/sales [post]
func (h *SalesHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.sales.Checkout(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List sales
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        date         query string false "YYYY-MM-DD"
// @Param        processed_by query string false "user id"
// @Param        page         query int    false "page (default 1)"
// @Param        limit        query int    false "page size (default 50)"
// @Success      200 {object} dto.SaleListResponse
// @Router       /v1/sales [get]
func (h *SalesHandler) List(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.sales.ListSales(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a sale
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "sale id"
// @Success      200 {object} dto.SaleResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/sales/{id} [get]
func (h *SalesHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Receipt godoc
// @Summary      Receipt projection of a sale
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "sale id"
// @Success      200 {object} dto.ReceiptResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/sales/{id}/receipt [get]
func (h *SalesHandler) Receipt(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.receipts.GetReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReceiptPDF godoc
// @Summary      Download the receipt PDF
// @Tags         sales
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id path string true "sale id"
// @Success      200 {file} file
// @Failure      409 {object} apierror.APIError "receipt not generated yet"
// @Router       /v1/sales/{id}/receipt/pdf [get]
func (h *SalesHandler) ReceiptPDF(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	path, err := h.receipts.PDFPath(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, "receipt_"+id.String()+".pdf")
}

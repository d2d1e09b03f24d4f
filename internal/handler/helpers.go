package handler

import (
	"errors"
	"net/http"
	"reflect"

	"clinicrx/internal/apierror"
	"clinicrx/internal/middleware"
	"clinicrx/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is validated as a number so tags like min=0 work on it.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds the JSON body and runs validator tags. On failure it
// writes the response and returns false.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(string(service.CodeInvalidArgument), "invalid JSON: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.WithCode(string(service.CodeInvalidArgument), err.Error()))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, apierror.NewValidation(fields))
		return false
	}
	return true
}

// bindQuery binds and validates query-string filters.
func bindQuery(c *gin.Context, filter interface{}) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(string(service.CodeInvalidArgument), err.Error()))
		return false
	}
	return validateStruct(c, filter)
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode(string(service.CodeInvalidArgument), "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom builds the engine actor from the verified token claims.
func actorFrom(c *gin.Context) service.Actor {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return service.Actor{}
	}
	id, _ := uuid.Parse(claims.UserID)
	return service.Actor{ID: id, Role: claims.Role}
}

var statusByCode = map[service.Code]int{
	service.CodeInsufficientStock:     http.StatusConflict,
	service.CodeInsufficientPayment:   http.StatusUnprocessableEntity,
	service.CodeDiscountFieldsMissing: http.StatusUnprocessableEntity,
	service.CodeMedicineNotFound:      http.StatusNotFound,
	service.CodeVisitNotFound:         http.StatusNotFound,
	service.CodePrescriptionNotFound:  http.StatusNotFound,
	service.CodeSaleNotFound:          http.StatusNotFound,
	service.CodeInvalidState:          http.StatusConflict,
	service.CodeInvalidArgument:       http.StatusBadRequest,
	service.CodeBusy:                  http.StatusServiceUnavailable,
}

// respondError writes a domain error with its code and offending line, or a
// generic 500 for anything else. Internal errors are logged, never echoed.
func respondError(c *gin.Context, err error) {
	var domainErr *service.Error
	if !errors.As(err, &domainErr) {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("route", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, apierror.WithCode("INTERNAL", "internal server error"))
		return
	}

	status, ok := statusByCode[domainErr.Code]
	if !ok {
		status = http.StatusBadRequest
	}
	body := apierror.WithCode(string(domainErr.Code), domainErr.Error())
	if domainErr.MedicineID != nil {
		id := domainErr.MedicineID.String()
		body.MedicineID = &id
	}
	body.Line = domainErr.Line
	if domainErr.Code == service.CodeBusy {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, body)
}

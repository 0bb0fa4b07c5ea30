package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeProductNotFound        = "PRODUCT_NOT_FOUND"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeEmptyCart              = "EMPTY_CART"
	CodeConflict               = "CONFLICT"
	CodeOrderPersistenceFailed = "ORDER_PERSISTENCE_FAILED"
	CodeCartRestoreFailed      = "CART_RESTORE_FAILED"
	CodeStoreUnavailable       = "STORE_UNAVAILABLE"
	CodePaymentUnavailable     = "PAYMENT_UNAVAILABLE"
	CodeInternal               = "INTERNAL"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order. A lost cart outranks everything else, including the store
// outage that may have caused it. Store unavailability comes next so a timeout surfacing
// through another error kind is never reported as that kind.
var errorMappings = []errorMapping{
	{cart.ErrCartRestoreFailed, http.StatusInternalServerError, CodeCartRestoreFailed, "order could not be saved and your cart could not be restored"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable, try again later"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated, ""},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden, ""},
	{user.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthenticated, ""},
	{user.ErrSessionNotFound, http.StatusUnauthorized, CodeUnauthenticated, ""},
	{user.ErrSessionEnded, http.StatusUnauthorized, CodeUnauthenticated, ""},
	{product.ErrProductNotFound, http.StatusNotFound, CodeProductNotFound, ""},
	{order.ErrOrderNotFound, http.StatusNotFound, CodeNotFound, ""},
	{user.ErrUserNotFound, http.StatusNotFound, CodeNotFound, ""},
	{order.ErrEmptyCart, http.StatusBadRequest, CodeEmptyCart, ""},
	{cart.ErrConcurrentModification, http.StatusConflict, CodeConflict, ""},
	{order.ErrIdempotencyInProgress, http.StatusConflict, CodeConflict, ""},
	{user.ErrEmailTaken, http.StatusConflict, CodeConflict, ""},
	{order.ErrOrderPersistenceFailed, http.StatusInternalServerError, CodeOrderPersistenceFailed, "order could not be saved, your cart was kept"},
	{payment.ErrGatewayUnavailable, http.StatusBadGateway, CodePaymentUnavailable, "payment provider unavailable"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, CodeInvalidInput, ""},
	{cart.ErrInvalidProduct, http.StatusBadRequest, CodeInvalidInput, ""},
	{product.ErrInvalidName, http.StatusBadRequest, CodeInvalidInput, ""},
	{product.ErrInvalidDesc, http.StatusBadRequest, CodeInvalidInput, ""},
	{product.ErrInvalidPrice, http.StatusBadRequest, CodeInvalidInput, ""},
	{product.ErrInvalidStock, http.StatusBadRequest, CodeInvalidInput, ""},
	{payment.ErrNothingToPay, http.StatusBadRequest, CodeInvalidInput, ""},
	{user.ErrInvalidEmail, http.StatusBadRequest, CodeInvalidInput, ""},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, CodeInvalidInput, ""},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, CodeInvalidInput, ""},
}

// writeError maps err onto a status and a stable code. Unknown errors are logged and hidden.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var invalid *inputError
	if errors.As(err, &invalid) {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, invalid.Error())
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = m.target.Error()
		}
		if m.status >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("code", m.code), zap.Error(err))
		}
		respondError(w, m.status, m.code, message)
		return
	}

	logger.Error("unhandled error", zap.Error(err))
	respondError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

// decodeJSON reads a size-limited JSON body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &inputError{msg: "request body is required"}
		}
		return &inputError{msg: "invalid request body"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			return &inputError{msg: strings.Join(fields, "; ")}
		}
		return &inputError{msg: err.Error()}
	}
	return nil
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/model"

	"github.com/go-playground/validator/v10"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var message string
	var data any
	var httpErr *errs.HttpError
	var fundsErr *errs.InsufficientFundsError
	var validationErr validator.ValidationErrors

	switch {
	case errors.As(err, &httpErr):
		message = httpErr.Message
		data = httpErr.Data
		w.WriteHeader(httpErr.Code)
	case errors.As(err, &fundsErr):
		message = "Insufficient funds"
		data = map[string]int64{
			"balance_cents":  fundsErr.BalanceCents,
			"required_cents": fundsErr.RequiredCents,
		}
		w.WriteHeader(http.StatusConflict)
	case errors.As(err, &validationErr):
		message = "Validation failed"
		w.WriteHeader(http.StatusBadRequest)

		validationErrors := make(map[string]string)
		for _, fieldErr := range validationErr {
			validationErrors[fieldErr.Field()] = fieldErr.Tag()
		}

		data = validationErrors
	case errors.Is(err, errs.ErrOrderNotFound),
		errors.Is(err, errs.ErrUserNotFound):
		message = err.Error()
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, errs.ErrMalformedRecord):
		message = err.Error()
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, errs.ErrSessionExpired):
		message = err.Error()
		w.WriteHeader(http.StatusRequestTimeout)
	case errors.Is(err, errs.ErrPoolExhausted),
		errors.Is(err, errs.ErrDuplicateCard),
		errors.Is(err, errs.ErrAlreadyResolved),
		errors.Is(err, errs.ErrNoCardAssigned),
		errors.Is(err, errs.ErrCardAssigned):
		message = err.Error()
		w.WriteHeader(http.StatusConflict)
	default:
		message = "Internal Server Error"
		w.WriteHeader(http.StatusInternalServerError)
	}

	errorResponse := model.ErrorResponse{Error: message, Data: data}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

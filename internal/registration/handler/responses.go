package handler

import (
	"encoding/json"
	"net/http"

	"gatehouse/internal/registration/models"
	"gatehouse/pkg/domain"
	domainerrors "gatehouse/pkg/domain-errors"
)

// RegisterResponse reports the committed account. ConfirmationRequired tells
// the client to prompt for the emailed confirmation link.
type RegisterResponse struct {
	UserID               domain.UserID    `json:"user_id"`
	Username             string           `json:"username"`
	State                domain.UserState `json:"state"`
	ConfirmationRequired bool             `json:"confirmation_required"`
	PreRegContent        string           `json:"prereg_content,omitempty"`
}

func newRegisterResponse(u *models.PersistedUser, preRegContent string) RegisterResponse {
	return RegisterResponse{
		UserID:               u.ID,
		Username:             u.Username,
		State:                u.State,
		ConfirmationRequired: u.State == domain.UserStateEmailConfirm,
		PreRegContent:        preRegContent,
	}
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationErrorResponse struct {
	Errors []fieldErrorResponse `json:"errors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeValidationErrors(w http.ResponseWriter, errs []models.FieldError) {
	resp := validationErrorResponse{Errors: make([]fieldErrorResponse, 0, len(errs))}
	for _, e := range errs {
		resp.Errors = append(resp.Errors, fieldErrorResponse{Field: e.Field, Message: e.Message})
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

// writeError translates domain error codes into HTTP statuses with a JSON
// envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeBadRequest:
		status = http.StatusBadRequest
	case domainerrors.CodeConflict:
		status = http.StatusConflict
	case domainerrors.CodeNotFound:
		status = http.StatusNotFound
	case domainerrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

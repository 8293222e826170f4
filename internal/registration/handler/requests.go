package handler

import (
	"strconv"

	"gatehouse/internal/registration/models"
)

// RegisterRequest is the registration form payload. Optional fields are
// pointers where absence and the zero value must stay distinct.
type RegisterRequest struct {
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	PasswordConfirm *string `json:"password_confirm"`
	Timezone        *string `json:"timezone"`
	Location        *string `json:"location"`

	DobDay   int `json:"dob_day"`
	DobMonth int `json:"dob_month"`
	DobYear  int `json:"dob_year"`

	EmailChoice *bool `json:"email_choice"`

	CustomFields map[string]string `json:"custom_fields"`

	AvatarURL string `json:"avatar_url"`
	PreRegKey string `json:"prereg_key"`
}

// Input converts the payload to the pipeline's field map, preserving the
// absent-versus-empty distinction the mapper relies on.
func (r RegisterRequest) Input() models.Input {
	fields := map[string]string{
		"username": r.Username,
		"email":    r.Email,
	}
	if r.Password != "" {
		fields["password"] = r.Password
	}
	if r.PasswordConfirm != nil {
		fields["password_confirm"] = *r.PasswordConfirm
	}
	if r.Timezone != nil {
		fields["timezone"] = *r.Timezone
	}
	if r.Location != nil {
		fields["location"] = *r.Location
	}
	if r.DobDay != 0 || r.DobMonth != 0 || r.DobYear != 0 {
		fields["dob_day"] = strconv.Itoa(r.DobDay)
		fields["dob_month"] = strconv.Itoa(r.DobMonth)
		fields["dob_year"] = strconv.Itoa(r.DobYear)
	}
	if r.EmailChoice != nil {
		fields["email_choice"] = strconv.FormatBool(*r.EmailChoice)
	}

	input := models.NewInput(fields)
	input.CustomFields = r.CustomFields
	return input
}

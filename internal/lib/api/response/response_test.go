package response

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/securecam/internal/lib/validate"
)

func TestValidationError(t *testing.T) {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,password"`
		MAC      string `json:"mac_address" validate:"mac_address"`
	}

	err := validate.New().Struct(request{Email: "bad", MAC: "zz"})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Struct() error = %v, want ValidationErrors", err)
	}

	resp := ValidationError(verrs)

	for _, want := range []string{
		"field email is not a valid email address",
		"field password is a required field",
		"field mac_address is not a valid MAC address",
	} {
		if !strings.Contains(resp.Error, want) {
			t.Errorf("ValidationError() = %q, want it to contain %q", resp.Error, want)
		}
	}
}

package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// List wraps a page of items.
type List[T any] struct {
	Items     []T `json:"items"`
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
}

func Error(msg, requestID string) Response {
	return Response{
		Error:     msg,
		RequestID: requestID,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email address", err.Field()))
		case "password":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s does not meet password requirements", err.Field()))
		case "host_address":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid IPv4 address", err.Field()))
		case "mac_address":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid MAC address", err.Field()))
		case "camera_name":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must start with a letter", err.Field()))
		case "file_name":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid file name", err.Field()))
		case "min", "max":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is out of range", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Error: strings.Join(errMsgs, ", "),
	}
}

package validate

import (
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*?&"

var (
	cameraNameRe = regexp.MustCompile(`^[a-zA-Z]+.*$`)
	hostRe       = regexp.MustCompile(`^((25[0-5]|(2[0-4]|1\d|[1-9]|)\d)\.?\b){4}$`)
	macRe        = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	emailRe      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-z]{2,}$`)
	fileNameRe   = regexp.MustCompile(`^[^\/\n]+$`)
)

// New returns a validator with the domain tags registered. Field names in
// errors are taken from the json tag.
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Only fails if the tag is already registered or the func is nil.
	_ = v.RegisterValidation("camera_name", stringRule(CameraName))
	_ = v.RegisterValidation("host_address", stringRule(HostAddress))
	_ = v.RegisterValidation("mac_address", stringRule(MACAddress))
	_ = v.RegisterValidation("password", stringRule(Password))
	_ = v.RegisterValidation("file_name", stringRule(FileName))
	_ = v.RegisterValidation("email", stringRule(Email))

	return v
}

func CameraName(s string) bool { return cameraNameRe.MatchString(s) }

// HostAddress accepts dotted IPv4 addresses.
func HostAddress(s string) bool { return hostRe.MatchString(s) && strings.Count(s, ".") == 3 }

func MACAddress(s string) bool { return macRe.MatchString(s) }

func Email(s string) bool { return emailRe.MatchString(s) }

func FileName(s string) bool { return fileNameRe.MatchString(s) }

// Password requires at least 8 characters with an upper and a lower case
// letter, a digit and one of @$!%*?&.
func Password(s string) bool {
	if utf8.RuneCountInString(s) < 8 {
		return false
	}

	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	return upper && lower && digit && special
}

func stringRule(fn func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return false
		}
		return fn(field.String())
	}
}

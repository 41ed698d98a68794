package validate

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestRules(t *testing.T) {
	tests := []struct {
		name  string
		rule  func(string) bool
		value string
		want  bool
	}{
		{name: "camera name", rule: CameraName, value: "frontdoor", want: true},
		{name: "camera name with digits after letter", rule: CameraName, value: "gate 2", want: true},
		{name: "camera name starting with digit", rule: CameraName, value: "2gate", want: false},
		{name: "camera name empty", rule: CameraName, value: "", want: false},

		{name: "host", rule: HostAddress, value: "10.0.0.5", want: true},
		{name: "host max", rule: HostAddress, value: "255.255.255.255", want: true},
		{name: "host out of range", rule: HostAddress, value: "256.0.0.1", want: false},
		{name: "host three octets", rule: HostAddress, value: "10.0.5", want: false},
		{name: "host trailing dot", rule: HostAddress, value: "10.0.0.5.", want: false},
		{name: "host name", rule: HostAddress, value: "camera.local", want: false},

		{name: "mac colon", rule: MACAddress, value: "AA:BB:CC:DD:EE:01", want: true},
		{name: "mac dash lower", rule: MACAddress, value: "aa-bb-cc-dd-ee-01", want: true},
		{name: "mac short", rule: MACAddress, value: "AA:BB:CC:DD:EE", want: false},
		{name: "mac bad hex", rule: MACAddress, value: "GG:BB:CC:DD:EE:01", want: false},

		{name: "email", rule: Email, value: "alice@example.com", want: true},
		{name: "email no tld", rule: Email, value: "alice@example", want: false},
		{name: "email no at", rule: Email, value: "alice.example.com", want: false},

		{name: "file name", rule: FileName, value: "clip-2024.mp4", want: true},
		{name: "file name with slash", rule: FileName, value: "../etc/passwd", want: false},
		{name: "file name with newline", rule: FileName, value: "a\nb", want: false},
		{name: "file name empty", rule: FileName, value: "", want: false},

		{name: "password", rule: Password, value: "Abc123!@#", want: true},
		{name: "password short", rule: Password, value: "Ab1!", want: false},
		{name: "password no upper", rule: Password, value: "abc123!@#", want: false},
		{name: "password no lower", rule: Password, value: "ABC123!@#", want: false},
		{name: "password no digit", rule: Password, value: "Abcdef!@#", want: false},
		{name: "password no special", rule: Password, value: "Abc123456", want: false},
		{name: "password other special only", rule: Password, value: "Abc123###", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule(tt.value); got != tt.want {
				t.Errorf("rule(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestStructTags(t *testing.T) {
	type request struct {
		Name     string  `json:"name" validate:"required,camera_name"`
		Host     string  `json:"host_address" validate:"required,host_address"`
		Password *string `json:"password" validate:"omitempty,password"`
	}

	v := New()

	weak := "weak"
	strong := "Abc123!@#"

	if err := v.Struct(request{Name: "frontdoor", Host: "10.0.0.5", Password: &strong}); err != nil {
		t.Fatalf("Struct() error = %v, want nil", err)
	}

	if err := v.Struct(request{Name: "frontdoor", Host: "10.0.0.5"}); err != nil {
		t.Fatalf("Struct() with nil optional error = %v, want nil", err)
	}

	err := v.Struct(request{Name: "1door", Host: "nope", Password: &weak})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Struct() error = %v, want ValidationErrors", err)
	}

	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}

	want := map[string]string{"name": "camera_name", "host_address": "host_address", "password": "password"}
	for field, tag := range want {
		if fields[field] != tag {
			t.Errorf("field %q failed with tag %q, want %q (all: %v)", field, fields[field], tag, fields)
		}
	}
}

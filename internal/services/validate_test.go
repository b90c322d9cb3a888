package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
)

func TestRules_CreateRequiresFieldsAndFile(t *testing.T) {
	err := Services.Rules.Check(Submission{Fields: map[string]string{"title": " "}}, false)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Fields["title"] == "" || ve.Fields["image"] == "" {
		t.Fatalf("fields = %+v", ve.Fields)
	}

	ok := Submission{
		Fields: map[string]string{"title": "IELTS prep"},
		Files:  []apiclient.File{{Field: "image", Name: "a.png", Data: []byte{1}}},
	}
	if err := Services.Rules.Check(ok, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRules_PartialChecksOnlyCarriedFields(t *testing.T) {
	if err := Users.Rules.Check(Submission{Fields: map[string]string{"role": "admin"}}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Users.Rules.Check(Submission{Fields: map[string]string{"name": "", "status": "gone"}}, true)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields["name"] == "" || ve.Fields["status"] == "" {
		t.Fatalf("got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "validation failed: name:") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRules_EmailAndStatusTags(t *testing.T) {
	cases := []struct {
		name    string
		rules   Rules
		fields  map[string]string
		partial bool
		want    FieldErrors
	}{
		{
			name:   "bad email on create",
			rules:  Contacts.Rules,
			fields: map[string]string{"name": "Ana", "email": "ana@", "message": "hi"},
			want:   FieldErrors{"email": "is not a valid email address"},
		},
		{
			name:   "missing email on create",
			rules:  Contacts.Rules,
			fields: map[string]string{"name": "Ana", "message": "hi"},
			want:   FieldErrors{"email": "is required"},
		},
		{
			name:    "optional email left blank",
			rules:   Rules{Email: []string{"email"}},
			fields:  map[string]string{"email": "  "},
			partial: true,
		},
		{
			name:    "padded email accepted",
			rules:   Contacts.Rules,
			fields:  map[string]string{"email": " ana@example.com "},
			partial: true,
		},
		{
			name:    "emptied email on update",
			rules:   Contacts.Rules,
			fields:  map[string]string{"email": ""},
			partial: true,
			want:    FieldErrors{"email": "must not be empty"},
		},
		{
			name:    "unknown status",
			rules:   Rules{},
			fields:  map[string]string{"status": "archived"},
			partial: true,
			want:    FieldErrors{"status": "must be one of new, active, blocked, deleted"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rules.Check(Submission{Fields: tc.fields}, tc.partial)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || len(ve.Fields) != len(tc.want) {
				t.Fatalf("got %v; want %v", err, tc.want)
			}
			for f, msg := range tc.want {
				if ve.Fields[f] != msg {
					t.Fatalf("%s = %q; want %q", f, ve.Fields[f], msg)
				}
			}
		})
	}
}

func TestCheckStatus(t *testing.T) {
	if err := checkStatus(domain.StatusActive); err != nil {
		t.Fatalf("active rejected: %v", err)
	}
	for _, s := range []domain.Status{"", "archived"} {
		if err := checkStatus(s); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: got %v", s, err)
		}
	}
}

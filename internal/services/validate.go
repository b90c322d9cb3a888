package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edulead/enquirydesk/internal/domain"
)

const statusMessage = "must be one of new, active, blocked, deleted"

// validate checks single submission values against tag rules. The "status"
// tag accepts the known lifecycle states.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return domain.Status(fl.Field().String()).Valid()
	})
	return v
}

// Rules describes what a resource's submissions must carry.
type Rules struct {
	// Required fields on create. Updates only check fields they carry.
	Required []string
	// Email fields must parse as an address when present.
	Email []string
	// RequiredFile names a multipart field that must be attached on create.
	RequiredFile string
}

// tags builds the validator tag of every field sub is checked on. Fields an
// update does not carry are left out.
func (r Rules) tags(sub Submission, partial bool) map[string][]string {
	out := map[string][]string{}
	add := func(f, tag string) {
		if _, ok := sub.Fields[f]; partial && !ok {
			return
		}
		out[f] = append(out[f], tag)
	}
	for _, f := range r.Required {
		add(f, "required")
	}
	for _, f := range r.Email {
		if _, req := out[f]; !req {
			add(f, "omitempty")
		}
		add(f, "email")
	}
	if _, ok := sub.Fields["status"]; ok {
		out["status"] = append(out["status"], "status")
	}
	return out
}

// Check validates sub. partial is set for updates.
func (r Rules) Check(sub Submission, partial bool) error {
	errs := FieldErrors{}
	for f, tags := range r.tags(sub, partial) {
		v := strings.TrimSpace(sub.Fields[f])
		if err := validate.Var(v, strings.Join(tags, ",")); err != nil {
			errs[f] = fieldMessage(err, partial)
		}
	}
	if !partial && r.RequiredFile != "" && !sub.hasFile(r.RequiredFile) {
		errs[r.RequiredFile] = "is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// fieldMessage renders the first failed tag of err.
func fieldMessage(err error, partial bool) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "is invalid"
	}
	return tagMessage(ve[0], partial)
}

func tagMessage(fe validator.FieldError, partial bool) string {
	switch fe.Tag() {
	case "required":
		if partial {
			return "must not be empty"
		}
		return "is required"
	case "email":
		return "is not a valid email address"
	case "status":
		return statusMessage
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

// BindingError converts the validator errors of a bound request body into a
// ValidationError keyed by lowercased field name. It returns nil for any
// other error.
func BindingError(err error) *ValidationError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	fields := FieldErrors{}
	for _, fe := range ve {
		fields[strings.ToLower(fe.Field())] = tagMessage(fe, false)
	}
	return &ValidationError{Fields: fields}
}

func checkStatus(s domain.Status) error {
	if err := validate.Var(string(s), "required,status"); err != nil {
		return &ValidationError{Fields: FieldErrors{"status": statusMessage}}
	}
	return nil
}

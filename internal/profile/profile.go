// Package profile manages saved connection profiles: validation, storage
// with encrypted passwords, and connection testing.
package profile

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
)

// Profile is a stored connection profile. Password is never serialised.
type Profile struct {
	ID           string       `json:"id"`
	Type         dialect.Type `json:"type"`
	Host         string       `json:"host,omitempty"`
	Port         int          `json:"port,omitempty"`
	Name         string       `json:"name,omitempty"`
	Username     string       `json:"username,omitempty"`
	Password     string       `json:"-"`
	ViewName     string       `json:"view_name,omitempty"`
	AnnotationID *string      `json:"annotation_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Params returns the connection parameters of p.
func (p *Profile) Params() dialect.Params {
	return dialect.Params{
		Type:     p.Type,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
		Name:     p.Name,
	}
}

// Input carries user-supplied connection fields for create and test.
type Input struct {
	Type     string `json:"type"`
	Host     string `json:"host" validate:"omitempty,max=255"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Name     string `json:"name" validate:"omitempty,max=1024"`
	Username string `json:"username" validate:"omitempty,max=128"`
	Password string `json:"password"`
	ViewName string `json:"view_name" validate:"omitempty,max=64"`
}

// Patch is a partial update; nil fields keep their stored value.
type Patch struct {
	Type     *string `json:"type"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	ViewName *string `json:"view_name"`
}

func (p Patch) apply(in Input) Input {
	if p.Type != nil {
		in.Type = *p.Type
	}
	if p.Host != nil {
		in.Host = *p.Host
	}
	if p.Port != nil {
		in.Port = *p.Port
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Username != nil {
		in.Username = *p.Username
	}
	if p.Password != nil {
		in.Password = *p.Password
	}
	if p.ViewName != nil {
		in.ViewName = *p.ViewName
	}
	return in
}

// Params converts in to connection parameters. Call Validate first.
func (in Input) Params() dialect.Params {
	t, _ := dialect.Parse(in.Type)
	return dialect.Params{
		Type:     t,
		Host:     strings.TrimSpace(in.Host),
		Port:     in.Port,
		Username: in.Username,
		Password: in.Password,
		Name:     strings.TrimSpace(in.Name),
	}
}

// Validator checks Input values. Fields required by the dialect are
// enforced at struct level on top of the tag rules.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(requiredByDialect, Input{})
	return &Validator{v: v}
}

// Validate returns nil or an *errs.Error: NO_DB_DRIVER for a missing type,
// INVALID_DB_DRIVER for an unknown one, NO_VALUE when a field the dialect
// requires is blank and INVALID_PARAMETER for malformed values.
func (pv *Validator) Validate(in Input) error {
	if strings.TrimSpace(in.Type) == "" {
		return errs.New(errs.ErrKindInvalidInput, "database type is required").WithCode(errs.CodeNoDBDriver)
	}
	if _, err := dialect.Parse(in.Type); err != nil {
		return err
	}

	err := pv.v.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid profile", err).WithCode(errs.CodeInvalidParameter)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "missing required fields: %s", strings.Join(missing, ", ")).
			WithCode(errs.CodeNoValue)
	}
	return errs.Newf(errs.ErrKindInvalidInput, "invalid fields: %s", strings.Join(invalid, ", ")).
		WithCode(errs.CodeInvalidParameter)
}

func requiredByDialect(sl validator.StructLevel) {
	in := sl.Current().Interface().(Input)
	t, err := dialect.Parse(in.Type)
	if err != nil {
		return
	}
	spec, err := dialect.Lookup(t)
	if err != nil {
		return
	}

	for _, field := range spec.Required {
		var (
			value       any
			blank       bool
			structField string
		)
		switch field {
		case "host":
			value, blank, structField = in.Host, strings.TrimSpace(in.Host) == "", "Host"
		case "port":
			value, blank, structField = in.Port, in.Port == 0, "Port"
		case "username":
			value, blank, structField = in.Username, strings.TrimSpace(in.Username) == "", "Username"
		case "password":
			value, blank, structField = in.Password, strings.TrimSpace(in.Password) == "", "Password"
		case "name":
			value, blank, structField = in.Name, strings.TrimSpace(in.Name) == "", "Name"
		default:
			continue
		}
		if blank {
			sl.ReportError(value, field, structField, "required", "")
		}
	}
}

// Package validation holds the form rules for users, posts and comments.
// Validators are pure: they take the submitted candidate and, for users, the
// mode, and return the offending fields in declaration order.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type Mode int

const (
	Create Mode = iota
	Update
)

type FieldError struct {
	Field   string
	Message string
}

type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *FieldErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e FieldErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Map returns the first message recorded for each field.
func (e FieldErrors) Map() map[string]string {
	if len(e) == 0 {
		return nil
	}
	m := make(map[string]string, len(e))
	for _, fe := range e {
		if _, ok := m[fe.Field]; !ok {
			m[fe.Field] = fe.Message
		}
	}
	return m
}

// UserCandidate is what the registration and profile forms submit.
// StoredHash is only consulted in Update mode.
type UserCandidate struct {
	Username             string `form:"username" validate:"required,min=4,max=12,alphanum"`
	Name                 string `form:"name" validate:"required,min=4,max=12"`
	Email                string `form:"email" validate:"omitempty,email"`
	Password             string `form:"password" validate:"required,password"`
	PasswordConfirmation string `form:"passwordConfirmation" validate:"required,eqfield=Password"`
	CurrentPassword      string `form:"currentPassword" validate:"required"`
	NewPassword          string `form:"newPassword" validate:"omitempty,password"`
	StoredHash           string `form:"-" validate:"-"`
}

type PostCandidate struct {
	Title string `form:"title" json:"title" validate:"required"`
	Body  string `form:"body" json:"body"`
}

type CommentCandidate struct {
	Body string `form:"body" json:"body" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("password", validPassword); err != nil {
		panic(err)
	}
	return v
}

// validPassword: 8-16 characters with at least one letter and one digit.
func validPassword(fl validator.FieldLevel) bool {
	return IsValidPassword(fl.Field().String())
}

func IsValidPassword(pw string) bool {
	n := len([]rune(pw))
	if n < 8 || n > 16 {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r) && r < unicode.MaxASCII:
			letter = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		}
	}
	return letter && digit
}

const (
	msgLength   = "Should be 4-12 characters!"
	msgEmail    = "Should be a valid email address!"
	msgPassword = "Should be minimum 8 characters of alphabet and number combination!"
)

var messages = map[string]map[string]string{
	"username": {
		"required": "Username is required!",
		"min":      msgLength,
		"max":      msgLength,
		"alphanum": "Should contain only letters and numbers!",
	},
	"name": {
		"required": "Name is required!",
		"min":      msgLength,
		"max":      msgLength,
	},
	"email": {
		"email": msgEmail,
	},
	"password": {
		"required": "Password is required!",
		"password": msgPassword,
	},
	"passwordConfirmation": {
		"required": "Password Confirmation is required!",
		"eqfield":  "Password Confirmation does not matched!",
	},
	"currentPassword": {
		"required": "Current Password is required!",
	},
	"newPassword": {
		"password": msgPassword,
	},
	"title": {
		"required": "Title is required!",
	},
	"body": {
		"required": "Body is required!",
	},
}

func collect(err error) FieldErrors {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{{Field: "unhandled", Message: err.Error()}}
	}
	var out FieldErrors
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()][fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid!"
		}
		out.Add(fe.Field(), msg)
	}
	return out
}

// ValidateUser checks a registration (Create) or a profile edit (Update).
// In Update mode the current password must match StoredHash before any
// other change is accepted, and a new password is optional.
func ValidateUser(c UserCandidate, mode Mode) FieldErrors {
	switch mode {
	case Create:
		return collect(validate.StructExcept(c, "CurrentPassword", "NewPassword"))
	case Update:
		errs := collect(validate.StructExcept(c, "Password", "PasswordConfirmation"))
		if c.CurrentPassword != "" && !matchesHash(c.CurrentPassword, c.StoredHash) {
			errs.Add("currentPassword", "Current Password is invalid!")
		}
		if c.NewPassword != c.PasswordConfirmation {
			errs.Add("passwordConfirmation", "Password Confirmation does not matched!")
		}
		return errs
	}
	return FieldErrors{{Field: "unhandled", Message: "unknown validation mode"}}
}

func matchesHash(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func ValidatePost(c PostCandidate) FieldErrors {
	return collect(validate.Struct(c))
}

func ValidateComment(c CommentCandidate) FieldErrors {
	return collect(validate.Struct(c))
}

package core

// validation.go provides field-level validation for contacts.
//
// Validation is pure: it never touches the store. Each field gets its own
// optional message so a form can show several inline errors from one pass.
// Uniqueness of email is a store concern and lives in ContactRepo.ValidateEmail,
// which reuses emailSyntaxError for the syntax half of the rule.

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// User-facing field messages.
const (
	MsgEmailRequired = "Email Required"
	MsgEmailNotValid = "Email Not Valid"
	MsgEmailUnique   = "Email Must Be Unique"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// tagMessages maps a failed validator tag on Email to its message.
var tagMessages = map[string]string{
	"required": MsgEmailRequired,
	"email":    MsgEmailNotValid,
}

// Validate checks the contact's fields. Phone is deliberately not validated.
func (c Contact) Validate() ContactErrors {
	var errs ContactErrors

	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errs
	}

	for _, fe := range fieldErrs {
		switch fe.StructField() {
		case "Email":
			if errs.Email == "" {
				errs.Email = messageForTag(fe.Tag())
			}
		}
	}
	return errs
}

// emailSyntaxError returns the message for a missing or malformed email,
// or "" when the address is well formed.
func emailSyntaxError(email string) string {
	err := validate.Var(email, "required,email")
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return ""
	}
	return messageForTag(fieldErrs[0].Tag())
}

func messageForTag(tag string) string {
	if msg, ok := tagMessages[tag]; ok {
		return msg
	}
	return MsgEmailNotValid
}

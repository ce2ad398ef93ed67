// Package errors provides the tagged domain error used across merchantpay.
//
// Every fallible step of the payment pipeline returns an *Error carrying a
// Kind, so callers can switch on the kind instead of inspecting concrete types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for handling and reporting.
type Kind string

const (
	// KindValidation is a missing or malformed request field.
	KindValidation Kind = "validation"
	// KindConfig is a missing or unusable process configuration value.
	KindConfig Kind = "config"
	// KindDecode is binary or hex input that does not follow the expected grammar.
	KindDecode Kind = "decode"
	// KindSigning is a transaction hash the merchant key cannot sign.
	KindSigning Kind = "signing"
	// KindSubmission is a rejection or outage of the submission service.
	KindSubmission Kind = "submission"
	// KindDuplicate is a repeated submission of an already accepted transaction.
	KindDuplicate Kind = "duplicate"
	// KindStorage is a failure of the receipt store.
	KindStorage Kind = "storage"
	// KindNotFound is a lookup for something that does not exist.
	KindNotFound Kind = "not_found"
	// KindInternal is anything else.
	KindInternal Kind = "internal"
)

// As provides compatibility with the standard errors package
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Error represents a domain error with additional context
type Error struct {
	// Kind is the failure class used for dispatch
	Kind Kind
	// Original is the original error
	Original error
	// Domain is the domain of the error (e.g., "payment", "storage")
	Domain string
	// Code is a machine-readable error code
	Code string
	// Message is a human-readable error message safe to return to callers
	Message string
	// Operation is the operation that failed (e.g., "SignTransaction")
	Operation string
	// Fields contains additional context about the error
	Fields map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder

	// Format: [Domain.Operation] Code: Message: Original
	sb.WriteString("[")
	if e.Domain != "" {
		sb.WriteString(e.Domain)
		if e.Operation != "" {
			sb.WriteString(".")
			sb.WriteString(e.Operation)
		}
	} else if e.Operation != "" {
		sb.WriteString(e.Operation)
	}
	sb.WriteString("] ")

	if e.Code != "" {
		sb.WriteString("Code=")
		sb.WriteString(e.Code)
		sb.WriteString(": ")
	}

	if e.Message != "" {
		sb.WriteString(e.Message)
	}

	if e.Original != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Original.Error())
	}

	return sb.String()
}

// Unwrap implements the errors.Unwrapper interface
func (e *Error) Unwrap() error {
	return e.Original
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Kind != "" {
		return domainErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// PublicMessage returns the caller-facing message for err. Raw wrapped
// errors never leak through it; an error without a domain message gets
// fallback.
func PublicMessage(err error, fallback string) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return fallback
}

// WrapWithOperation wraps an error with an operation
func WrapWithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Operation = operation
		return &clone
	}

	return &Error{
		Kind:      KindInternal,
		Original:  err,
		Operation: operation,
	}
}

// Errorf creates a domain error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package validation collects the problems found while loading a policy
// document (permission matrix, field defaults, directory) so that every
// problem is reported at once, at startup, rather than one per restart.
package validation

import (
	"fmt"
	"strings"

	"github.com/caseaccess/accessengine/pkg/common"
)

// Error is a single problem with its location inside a document.
type Error struct {
	Document string
	Type     string
	Entry    string
	Field    string
	Message  string
}

// Error implements the error interface
func (ve *Error) Error() string {
	parts := []string{}

	if ve.Document != "" {
		parts = append(parts, fmt.Sprintf("document '%s'", ve.Document))
	}
	if ve.Entry != "" {
		parts = append(parts, fmt.Sprintf("entry '%s'", ve.Entry))
	}
	if ve.Field != "" {
		parts = append(parts, fmt.Sprintf("field '%s'", ve.Field))
	}

	location := ""
	if len(parts) > 0 {
		location = "in " + strings.Join(parts, " ") + ": "
	}

	return location + ve.Message
}

// Errors is a collection of validation errors for one document.
type Errors struct {
	Document string
	Errors   []*Error
}

// NewErrors creates an empty collection for the named document.
func NewErrors(document string) *Errors {
	return &Errors{Document: document}
}

// Addf records a problem.
func (ve *Errors) Addf(errorType, entry, field, format string, args ...interface{}) {
	ve.Errors = append(ve.Errors, &Error{
		Document: ve.Document,
		Type:     errorType,
		Entry:    entry,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors returns true if there are any validation errors
func (ve *Errors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// Count returns the number of validation errors
func (ve *Errors) Count() int {
	return len(ve.Errors)
}

// Error implements the error interface for the collection
func (ve *Errors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}

	if len(ve.Errors) == 1 {
		return ve.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(ve.Errors)))

	for i, err := range ve.Errors {
		typeInfo := ""
		if err.Type != "" {
			typeInfo = fmt.Sprintf("[%s] ", err.Type)
		}
		sb.WriteString(fmt.Sprintf("  %d. %s%s\n", i+1, typeInfo, err.Error()))
	}

	return sb.String()
}

// ByType groups errors by validation type
func (ve *Errors) ByType() map[string][]*Error {
	byType := make(map[string][]*Error)
	for _, err := range ve.Errors {
		t := err.Type
		if t == "" {
			t = "unknown"
		}
		byType[t] = append(byType[t], err)
	}
	return byType
}

// Err returns nil when the collection is empty, otherwise a configuration
// error describing every problem.
func (ve *Errors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return common.NewError(common.CodeConfiguration, "%s", ve.Error())
}

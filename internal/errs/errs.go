// Package errs defines the client-visible failure taxonomy shared by the
// stores, the service layer and the HTTP error handler.
package errs

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// NotFound builds a NotFoundError.
func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// ValidationError carries per-field failures keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// DuplicateNameError reports a uniqueness violation on a name column.
type DuplicateNameError struct {
	Resource string
	Name     string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s with name %q already exists", e.Resource, e.Name)
}

// HasChildrenError is returned when deleting a category that still has
// direct children.
type HasChildrenError struct {
	Name     string
	Children int64
}

func (e *HasChildrenError) Error() string {
	return fmt.Sprintf("category %q has %d child categories", e.Name, e.Children)
}

// CycleError is returned when a move would place a category under itself
// or one of its descendants.
type CycleError struct {
	Node   string
	Parent string
}

func (e *CycleError) Error() string {
	if e.Node == e.Parent {
		return fmt.Sprintf("category %q cannot be its own parent", e.Node)
	}
	return fmt.Sprintf("category %q cannot be moved under its descendant %q", e.Node, e.Parent)
}

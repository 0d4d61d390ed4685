package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch marks an export whose headers cannot be mapped to slots.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrOverrideDrift marks a manual correction naming a database that no longer exists.
	ErrOverrideDrift = errors.New("override drift")

	// ErrInconsistentGroup marks a canonical group whose rows disagree on an invariant field.
	ErrInconsistentGroup = errors.New("inconsistent group")
)

// SchemaError lists headers that look like slot questions but carry no slot number.
type SchemaError struct {
	Source  string
	Headers []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: headers without slot index: %s", e.Source, strings.Join(e.Headers, " | "))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// OverrideError reports manual corrections whose target name is absent.
type OverrideError struct {
	Kind  string
	Names []string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("%s override references unknown database: %s", e.Kind, strings.Join(e.Names, ", "))
}

func (e *OverrideError) Is(target error) bool {
	return target == ErrOverrideDrift
}

type ConsistencyError struct {
	Conflicts []Conflict
}

func (e *ConsistencyError) Error() string {
	names := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		names = append(names, c.Name+"."+c.Field)
	}
	return fmt.Sprintf("%d inconsistent group fields: %s", len(e.Conflicts), strings.Join(names, ", "))
}

func (e *ConsistencyError) Is(target error) bool {
	return target == ErrInconsistentGroup
}

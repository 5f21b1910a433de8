package tagconf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigNotFound is returned when a referenced configuration file
// does not exist on disk.
var ErrConfigNotFound = errors.New("config file not found")

// ConflictError reports two representations of the same key path that
// disagree when flattening or unflattening.
type ConflictError struct {
	Key      string
	Existing any
	Incoming any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting key %q: existing value %v collides with %v",
		e.Key, e.Existing, e.Incoming)
}

// NewKeyError reports a key present in the merged-in mapping but absent
// from the base mapping while new keys are disallowed.
type NewKeyError struct {
	Key string
}

func (e *NewKeyError) Error() string {
	return fmt.Sprintf("new parameter %q is not present in the original config", e.Key)
}

// TagSemanticError reports a tag whose value or placement is invalid,
// for example a @merge_after value that is not a config file path or a
// @select that targets the document root.
type TagSemanticError struct {
	Tag    string
	Key    string
	Reason string
}

func (e *TagSemanticError) Error() string {
	return fmt.Sprintf("invalid @%s at key %q: %s", e.Tag, e.Key, e.Reason)
}

// ProtectionError reports a direct modification of a value that a
// processing protects, such as the target of a @copy.
type ProtectionError struct {
	Key       string
	Protected any
	Attempted any
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("key %q is protected against direct updates: "+
		"attempted value %v, protected value %v", e.Key, e.Attempted, e.Protected)
}

// TypeError reports a value that fails its forced @type check at the
// end of a build, after conversion was attempted.
type TypeError struct {
	Key   string
	Want  string
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("key %q tagged with '@type:%s' holds incompatible value %v (%T)",
		e.Key, e.Want, e.Value, e.Value)
}

// TagLeakError reports keys that still carry an '@' after every
// registered pre-merge processing ran. It usually means a typo in a tag
// name or a missing processing in the process list.
type TagLeakError struct {
	Keys []string
}

func (e *TagLeakError) Error() string {
	keys := e.Keys
	suffix := ""
	if len(keys) > 5 {
		keys = keys[:5]
		suffix = " (first 5 shown)"
	}
	return fmt.Sprintf("tagged keys remain after the pre-merge process%s:\n%s\n"+
		"this usually means a typo in a tag name, a missing processing in the "+
		"process list, or an '@' used in a parameter name",
		suffix, strings.Join(keys, "\n"))
}

package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/dealflow/internal/fieldcodec"
	"gorm.io/gorm"
)

var (
	ErrInvalidKind          = errors.New("invalid entity kind")
	ErrFieldNotFound        = errors.New("field not found")
	ErrDuplicateFieldName   = errors.New("a field with this name already exists")
	ErrInvalidFieldName     = errors.New("field name must start with a letter and contain only lowercase letters, digits and underscores")
	ErrInvalidFieldType     = errors.New("invalid field type")
	ErrDuplicateFieldLabel  = errors.New("a field with this label already exists or the label names a built-in column")
	ErrDuplicateOption      = errors.New("option values must be unique within a field")
	ErrInvalidOptionValue   = errors.New("option values cannot contain the multi-value separator \"" + fieldcodec.MultiValueSeparator + "\"")
	ErrSystemFieldDelete    = errors.New("system fields cannot be deleted")
	ErrSystemFieldImmutable = errors.New("the name and type of a system field cannot be changed")
	ErrSectionNotFound      = errors.New("section not found")
	ErrDuplicateSection     = errors.New("a section with this key already exists")
	ErrRecordNotFound       = errors.New("record not found")
	ErrEmptyImport          = errors.New("the file has no header row")
	ErrTooManyRows          = errors.New("the file exceeds the maximum number of rows")
)

// ConflictError reports a natural-key collision (email or phone) with
// another record of the same kind.
type ConflictError struct {
	Field      string
	Value      string
	ExistingID uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already belongs to another record", e.Field, e.Value)
}

// RecordValidationError carries every field failure of a single record save.
// Single-record saves are all-or-nothing, so nothing is written when this is returned.
type RecordValidationError struct {
	Errors []fieldcodec.ValidationError `json:"errors"`
}

func (e *RecordValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// isDuplicateKey reports whether err is a unique-index violation from the store.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// duplicateKeyField guesses which natural key a unique violation refers to
// from the driver message; drivers name the index or column differently.
func duplicateKeyField(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "phone"):
		return "phone"
	case strings.Contains(msg, "email"):
		return "email"
	}
	return "record"
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

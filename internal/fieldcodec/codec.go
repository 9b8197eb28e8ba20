// Package fieldcodec validates, parses and formats custom field values
// according to a field definition's declared type. It is the single
// authority for type semantics shared by record forms, delimited import and
// export, and lead conversion.
//
// Stored values are always text: scalars as plain strings, multi-choice
// values as a JSON array of tokens.
package fieldcodec

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/huangang/dealflow/internal/models"
)

// ErrorKind classifies a validation failure
type ErrorKind string

const (
	RequiredMissing ErrorKind = "required_missing"
	TypeMismatch    ErrorKind = "type_mismatch"
)

// ValidationError is a field-level failure. It is returned as a value, never
// panicked, so callers can keep processing the remaining fields.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// MultiValueSeparator joins multi-choice tokens in delimited files
const MultiValueSeparator = ";"

// DateLayout is the canonical storage form of date values
const DateLayout = "2006-01-02"

// dateLayouts are tried in order. Slashed dates are read month-first
// (01/02/2006); day-first input is not accepted.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

// Value is a parsed field value: string, float64, time.Time or []string.
type Value interface{}

// Codec carries codec-wide options. The zero value is ready to use.
type Codec struct {
	// StrictChoices rejects choice tokens absent from the field's active options.
	StrictChoices bool
}

// Default is the lenient codec: choice tokens are not checked against options.
var Default = Codec{}

// Validate checks raw input for field. A nil result means the input is
// acceptable; blank input on an optional field is always acceptable.
func (c Codec) Validate(field *models.FieldDefinition, raw string) *ValidationError {
	value := strings.TrimSpace(raw)
	if value == "" {
		if field.IsRequired {
			return &ValidationError{Kind: RequiredMissing, Field: field.Label, Message: field.Label + " is required"}
		}
		return nil
	}

	mismatch := func(msg string) *ValidationError {
		return &ValidationError{Kind: TypeMismatch, Field: field.Label, Message: msg}
	}

	switch field.FieldType {
	case models.FieldTypeEmail:
		if !emailPattern.MatchString(value) {
			return mismatch("invalid email address")
		}
	case models.FieldTypePhone:
		if !phonePattern.MatchString(value) {
			return mismatch("invalid phone number")
		}
	case models.FieldTypeURL:
		if !isAbsoluteURL(value) {
			return mismatch("invalid URL")
		}
	case models.FieldTypeNumber:
		if _, err := parseNumber(value); err != nil {
			return mismatch("must be a number")
		}
	case models.FieldTypeDate:
		if _, err := parseDate(value); err != nil {
			return mismatch("invalid date")
		}
	case models.FieldTypeSelect:
		if c.StrictChoices && !hasActiveOption(field, value) {
			return mismatch(fmt.Sprintf("%q is not a valid option", value))
		}
	case models.FieldTypeCheckbox, models.FieldTypeMultiSelect:
		tokens := rawTokens(value)
		if len(tokens) == 0 && field.IsRequired {
			return &ValidationError{Kind: RequiredMissing, Field: field.Label, Message: field.Label + " is required"}
		}
		if c.StrictChoices {
			for _, tok := range tokens {
				if !hasActiveOption(field, tok) {
					return mismatch(fmt.Sprintf("%q is not a valid option", tok))
				}
			}
		}
	}
	return nil
}

// Parse converts validated raw input into its typed value. Multi-choice input
// may be a JSON array or a separator-delimited token list.
func (c Codec) Parse(field *models.FieldDefinition, raw string) (Value, error) {
	value := strings.TrimSpace(raw)

	switch field.FieldType {
	case models.FieldTypeNumber:
		if value == "" {
			return nil, nil
		}
		return parseNumber(value)
	case models.FieldTypeDate:
		if value == "" {
			return nil, nil
		}
		return parseDate(value)
	case models.FieldTypeCheckbox, models.FieldTypeMultiSelect:
		return rawTokens(value), nil
	case models.FieldTypeEmail:
		return strings.ToLower(value), nil
	case models.FieldTypeTextarea:
		// Keep interior formatting of long text, only trim the edges
		return strings.TrimSpace(raw), nil
	default:
		return value, nil
	}
}

// Format renders a typed value into its storage text.
func (c Codec) Format(field *models.FieldDefinition, v Value) (string, error) {
	if v == nil {
		return "", nil
	}

	if field.FieldType.IsMulti() {
		tokens, err := toTokens(v)
		if err != nil {
			return "", err
		}
		if len(tokens) == 0 {
			return "", nil
		}
		b, err := json.Marshal(tokens)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case time.Time:
		return val.Format(DateLayout), nil
	case []string:
		return strings.Join(val, MultiValueSeparator), nil
	default:
		return "", fmt.Errorf("cannot format %T for %s field %q", v, field.FieldType, field.Name)
	}
}

// Encode validates, parses and formats raw input in one step. It returns the
// storage text or the validation failure; blank optional input encodes to "".
func (c Codec) Encode(field *models.FieldDefinition, raw string) (string, *ValidationError) {
	if verr := c.Validate(field, raw); verr != nil {
		return "", verr
	}
	v, err := c.Parse(field, raw)
	if err != nil {
		return "", &ValidationError{Kind: TypeMismatch, Field: field.Label, Message: err.Error()}
	}
	out, err := c.Format(field, v)
	if err != nil {
		return "", &ValidationError{Kind: TypeMismatch, Field: field.Label, Message: err.Error()}
	}
	return out, nil
}

// Decode reads stored text back into a typed value. A multi-choice value that
// is not a JSON array degrades to an empty token list instead of failing;
// scalar values that no longer parse are returned as their raw text.
func (c Codec) Decode(field *models.FieldDefinition, stored string) Value {
	if field.FieldType.IsMulti() {
		tokens, ok := decodeTokens(stored)
		if !ok {
			return []string{}
		}
		return tokens
	}
	switch field.FieldType {
	case models.FieldTypeNumber:
		if n, err := parseNumber(stored); err == nil {
			return n
		}
	case models.FieldTypeDate:
		if d, err := parseDate(stored); err == nil {
			return d
		}
	}
	return stored
}

// Display renders stored text for a delimited export cell.
func (c Codec) Display(field *models.FieldDefinition, stored string) string {
	if field.FieldType.IsMulti() {
		tokens, _ := c.Decode(field, stored).([]string)
		return strings.Join(tokens, MultiValueSeparator)
	}
	return stored
}

// SplitTokens splits a separator-delimited cell into trimmed, de-duplicated tokens.
func SplitTokens(s string) []string {
	tokens := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, MultiValueSeparator) {
		tok := strings.TrimSpace(part)
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// rawTokens reads multi-choice input given either as a JSON array (form
// payloads) or as a separator-delimited cell (delimited files).
func rawTokens(value string) []string {
	if strings.HasPrefix(value, "[") {
		if tokens, ok := decodeTokens(value); ok {
			return tokens
		}
	}
	return SplitTokens(value)
}

func decodeTokens(stored string) ([]string, bool) {
	var raw []interface{}
	if err := json.Unmarshal([]byte(stored), &raw); err != nil {
		return nil, false
	}
	tokens := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			tokens = append(tokens, v)
		case float64:
			tokens = append(tokens, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			tokens = append(tokens, strconv.FormatBool(v))
		}
	}
	return tokens, true
}

func toTokens(v Value) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case string:
		return SplitTokens(val), nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot format %T as a token list", v)
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return n, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func hasActiveOption(field *models.FieldDefinition, token string) bool {
	for _, opt := range field.Options {
		if opt.IsActive && opt.Value == token {
			return true
		}
	}
	return false
}

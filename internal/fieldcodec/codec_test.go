package fieldcodec

import (
	"sort"
	"testing"
	"time"

	"github.com/huangang/dealflow/internal/models"
)

func field(t models.FieldType, required bool) *models.FieldDefinition {
	return &models.FieldDefinition{Name: "f", Label: "Field", FieldType: t, IsRequired: required}
}

func choiceField(t models.FieldType) *models.FieldDefinition {
	f := field(t, false)
	f.Options = []models.FieldOption{
		{Value: "seed", Label: "Seed", IsActive: true},
		{Value: "series_a", Label: "Series A", IsActive: true},
		{Value: "legacy", Label: "Legacy", IsActive: false},
	}
	return f
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		field    *models.FieldDefinition
		input    string
		wantKind ErrorKind // "" means valid
	}{
		{"required blank", field(models.FieldTypeText, true), "   ", RequiredMissing},
		{"optional blank", field(models.FieldTypeEmail, false), "", ""},
		{"valid email", field(models.FieldTypeEmail, false), "ada@example.com", ""},
		{"email without tld", field(models.FieldTypeEmail, false), "ada@example", TypeMismatch},
		{"email with space", field(models.FieldTypeEmail, false), "ada lovelace@example.com", TypeMismatch},
		{"valid phone", field(models.FieldTypePhone, false), "+1 (555) 010-2030", ""},
		{"phone with letters", field(models.FieldTypePhone, false), "555-CALL", TypeMismatch},
		{"absolute url", field(models.FieldTypeURL, false), "https://example.com/deck", ""},
		{"relative url", field(models.FieldTypeURL, false), "example.com/deck", TypeMismatch},
		{"number", field(models.FieldTypeNumber, false), "1250000.50", ""},
		{"number with thousands", field(models.FieldTypeNumber, false), "1,250,000", ""},
		{"not a number", field(models.FieldTypeNumber, false), "a lot", TypeMismatch},
		{"infinite number", field(models.FieldTypeNumber, false), "Inf", TypeMismatch},
		{"iso date", field(models.FieldTypeDate, false), "2024-03-01", ""},
		{"us date", field(models.FieldTypeDate, false), "03/01/2024", ""},
		{"bad date", field(models.FieldTypeDate, false), "2024-13-45", TypeMismatch},
		{"day-first date", field(models.FieldTypeDate, false), "25/12/2024", TypeMismatch},
		{"unknown choice is lenient", choiceField(models.FieldTypeSelect), "growth", ""},
		{"required multi empty array", &models.FieldDefinition{Label: "Stages", FieldType: models.FieldTypeCheckbox, IsRequired: true}, "[]", RequiredMissing},
		{"multi separator list", choiceField(models.FieldTypeMultiSelect), "seed; series_a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Default.Validate(tt.field, tt.input)
			if tt.wantKind == "" {
				if err != nil {
					t.Errorf("Validate(%q) = %v, expected valid", tt.input, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) = nil, expected %s", tt.input, tt.wantKind)
			}
			if err.Kind != tt.wantKind {
				t.Errorf("Validate(%q) kind = %s, expected %s", tt.input, err.Kind, tt.wantKind)
			}
			if err.Field != tt.field.Label {
				t.Errorf("Validate(%q) field = %q, expected %q", tt.input, err.Field, tt.field.Label)
			}
		})
	}
}

func TestValidate_StrictChoices(t *testing.T) {
	strict := Codec{StrictChoices: true}

	if err := strict.Validate(choiceField(models.FieldTypeSelect), "seed"); err != nil {
		t.Errorf("active option should pass, got %v", err)
	}
	if err := strict.Validate(choiceField(models.FieldTypeSelect), "legacy"); err == nil {
		t.Error("inactive option should be rejected in strict mode")
	}
	if err := strict.Validate(choiceField(models.FieldTypeCheckbox), "seed;growth"); err == nil {
		t.Error("unknown multi token should be rejected in strict mode")
	}
	if err := strict.Validate(choiceField(models.FieldTypeCheckbox), `["seed","series_a"]`); err != nil {
		t.Errorf("JSON array of active tokens should pass, got %v", err)
	}
}

func TestEncode_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		field    *models.FieldDefinition
		input    string
		expected string
	}{
		{"email lowercased", field(models.FieldTypeEmail, false), " Ada@Example.COM ", "ada@example.com"},
		{"number canonical", field(models.FieldTypeNumber, false), "1,500.0", "1500"},
		{"number fraction", field(models.FieldTypeNumber, false), "0.25", "0.25"},
		{"date canonical", field(models.FieldTypeDate, false), "03/01/2024", "2024-03-01"},
		{"rfc3339 date", field(models.FieldTypeDate, false), "2024-03-01T10:00:00Z", "2024-03-01"},
		{"text trimmed", field(models.FieldTypeText, false), "  Acme  ", "Acme"},
		{"blank optional", field(models.FieldTypeNumber, false), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verr := Default.Encode(tt.field, tt.input)
			if verr != nil {
				t.Fatalf("Encode(%q) error = %v", tt.input, verr)
			}
			if got != tt.expected {
				t.Errorf("Encode(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEncode_Multi(t *testing.T) {
	f := choiceField(models.FieldTypeCheckbox)

	got, verr := Default.Encode(f, "seed; series_a ;seed;")
	if verr != nil {
		t.Fatalf("Encode() error = %v", verr)
	}
	if got != `["seed","series_a"]` {
		t.Errorf("Encode() = %q, expected JSON array", got)
	}

	got, verr = Default.Encode(f, `["series_a"]`)
	if verr != nil {
		t.Fatalf("Encode() error = %v", verr)
	}
	if got != `["series_a"]` {
		t.Errorf("Encode() = %q, expected JSON array passthrough", got)
	}
}

// Every value that passes Validate must also Format.
func TestFormatTotalAfterValidate(t *testing.T) {
	inputs := map[models.FieldType][]string{
		models.FieldTypeText:        {"a", "  spaced  ", "ünïcode"},
		models.FieldTypeTextarea:    {"line one\nline two"},
		models.FieldTypeEmail:       {"x@y.io", "First.Last+tag@sub.example.org"},
		models.FieldTypePhone:       {"+44 20 7946 0000", "(555)1234567"},
		models.FieldTypeURL:         {"http://a.b", "https://example.com/path?q=1"},
		models.FieldTypeNumber:      {"0", "-12.5", "1e6", "3,000"},
		models.FieldTypeDate:        {"2024-02-29", "Jan 2, 2006", "02 Jan 2006"},
		models.FieldTypeSelect:      {"anything"},
		models.FieldTypeCheckbox:    {"a;b", `["x"]`, ";;"},
		models.FieldTypeMultiSelect: {"only"},
	}

	for ft, values := range inputs {
		for _, in := range values {
			f := field(ft, false)
			if verr := Default.Validate(f, in); verr != nil {
				t.Errorf("%s %q unexpectedly invalid: %v", ft, in, verr)
				continue
			}
			v, err := Default.Parse(f, in)
			if err != nil {
				t.Errorf("%s Parse(%q) error = %v", ft, in, err)
				continue
			}
			if _, err := Default.Format(f, v); err != nil {
				t.Errorf("%s Format(Parse(%q)) error = %v", ft, in, err)
			}
		}
	}
}

// parse(format(x)) recovers the same token set for multi-choice fields.
func TestMultiRoundTripFromStorage(t *testing.T) {
	f := choiceField(models.FieldTypeMultiSelect)
	sets := [][]string{
		{"seed"},
		{"series_a", "seed"},
		{"a;b", "c"}, // separator inside a token survives storage form
	}

	for _, tokens := range sets {
		stored, err := Default.Format(f, tokens)
		if err != nil {
			t.Fatalf("Format(%v) error = %v", tokens, err)
		}
		back, err := Default.Parse(f, stored)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", stored, err)
		}
		got := append([]string(nil), back.([]string)...)
		want := append([]string(nil), tokens...)
		sort.Strings(got)
		sort.Strings(want)
		if len(got) != len(want) {
			t.Fatalf("round trip %v -> %v", tokens, got)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("round trip %v -> %v", tokens, got)
			}
		}
	}
}

func TestDecode(t *testing.T) {
	multi := choiceField(models.FieldTypeCheckbox)

	if got := Default.Decode(multi, "not json").([]string); len(got) != 0 {
		t.Errorf("unparsable multi value should decode to empty list, got %v", got)
	}
	if got := Default.Decode(multi, `{"seed":true}`).([]string); len(got) != 0 {
		t.Errorf("non-array multi value should decode to empty list, got %v", got)
	}
	if got := Default.Decode(multi, `["seed",2]`).([]string); len(got) != 2 || got[1] != "2" {
		t.Errorf("mixed array should decode to tokens, got %v", got)
	}

	num := field(models.FieldTypeNumber, false)
	if got, ok := Default.Decode(num, "42.5").(float64); !ok || got != 42.5 {
		t.Errorf("Decode(number) = %v", got)
	}
	if got, ok := Default.Decode(num, "n/a").(string); !ok || got != "n/a" {
		t.Errorf("stale number should decode to raw text, got %v", got)
	}

	date := field(models.FieldTypeDate, false)
	if got, ok := Default.Decode(date, "2024-03-01").(time.Time); !ok || got.Month() != time.March {
		t.Errorf("Decode(date) = %v", got)
	}
}

func TestDisplay(t *testing.T) {
	multi := choiceField(models.FieldTypeCheckbox)
	if got := Default.Display(multi, `["seed","series_a"]`); got != "seed;series_a" {
		t.Errorf("Display(multi) = %q", got)
	}
	if got := Default.Display(multi, "garbage"); got != "" {
		t.Errorf("Display(garbage multi) = %q, expected empty", got)
	}
	if got := Default.Display(field(models.FieldTypeText, false), "plain"); got != "plain" {
		t.Errorf("Display(text) = %q", got)
	}
}

func TestFormat_UnsupportedType(t *testing.T) {
	if _, err := Default.Format(field(models.FieldTypeText, false), struct{}{}); err == nil {
		t.Error("expected error formatting a struct")
	}
}

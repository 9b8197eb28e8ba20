package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityKind identifies which record type a field definition or value belongs to
type EntityKind string

const (
	KindLead     EntityKind = "lead"
	KindInvestor EntityKind = "investor"
)

// Valid reports whether k is a known entity kind
func (k EntityKind) Valid() bool {
	return k == KindLead || k == KindInvestor
}

// FieldType is the declared type of a custom field
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeEmail       FieldType = "email"
	FieldTypePhone       FieldType = "phone"
	FieldTypeURL         FieldType = "url"
	FieldTypeNumber      FieldType = "number"
	FieldTypeDate        FieldType = "date"
	FieldTypeSelect      FieldType = "select"      // single choice
	FieldTypeCheckbox    FieldType = "checkbox"    // multi choice, rendered as checkboxes
	FieldTypeMultiSelect FieldType = "multiselect" // multi choice, rendered as dropdown
)

var fieldTypes = map[FieldType]bool{
	FieldTypeText:        true,
	FieldTypeTextarea:    true,
	FieldTypeEmail:       true,
	FieldTypePhone:       true,
	FieldTypeURL:         true,
	FieldTypeNumber:      true,
	FieldTypeDate:        true,
	FieldTypeSelect:      true,
	FieldTypeCheckbox:    true,
	FieldTypeMultiSelect: true,
}

func (t FieldType) Valid() bool { return fieldTypes[t] }

// IsMulti reports whether values of this type are token lists
func (t FieldType) IsMulti() bool {
	return t == FieldTypeCheckbox || t == FieldTypeMultiSelect
}

// HasOptions reports whether the type draws its values from an option list
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t.IsMulti()
}

// System attributes live as native columns on leads and investors and may be
// mirrored through a system-flagged field definition for form ordering.
const (
	SystemFieldSource   = "source"
	SystemFieldStatus   = "status"
	SystemFieldPriority = "priority"
)

var SystemFieldNames = []string{SystemFieldSource, SystemFieldStatus, SystemFieldPriority}

// IsSystemFieldName reports whether name is one of the mirrored system attributes
func IsSystemFieldName(name string) bool {
	for _, n := range SystemFieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// Lead pipeline statuses
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusWon       = "closed_won"
	LeadStatusLost      = "closed_lost"
)

// FieldDefinition is an administrator-configured attribute of an entity kind
type FieldDefinition struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	EntityKind   EntityKind    `gorm:"size:20;not null;uniqueIndex:idx_field_kind_name,priority:1" json:"entity_kind"`
	Name         string        `gorm:"size:100;not null;uniqueIndex:idx_field_kind_name,priority:2" json:"name"` // machine name
	Label        string        `gorm:"size:200;not null" json:"label"`
	FieldType    FieldType     `gorm:"size:30;not null" json:"field_type"`
	IsRequired   bool          `gorm:"not null" json:"is_required"`
	IsActive     bool          `gorm:"not null" json:"is_active"`
	IsSystem     bool          `gorm:"not null" json:"is_system"` // system fields cannot be deleted
	SectionKey   string        `gorm:"size:100;index" json:"section_key"`
	SortOrder    int           `gorm:"not null;default:0" json:"sort_order"`
	Placeholder  string        `gorm:"size:255" json:"placeholder"`
	HelpText     string        `gorm:"size:500" json:"help_text"`
	DefaultValue string        `gorm:"size:500" json:"default_value"`
	Options      []FieldOption `gorm:"foreignKey:FieldID" json:"options"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// FieldOption is one selectable token of a choice field
type FieldOption struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FieldID   uint      `gorm:"not null;uniqueIndex:idx_option_field_value,priority:1" json:"field_id"`
	Value     string    `gorm:"size:100;not null;uniqueIndex:idx_option_field_value,priority:2" json:"value"`
	Label     string    `gorm:"size:200;not null" json:"label"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// AttributeValue stores one custom value as text. Multi-choice values are a
// JSON array in text form.
type AttributeValue struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	EntityKind EntityKind       `gorm:"size:20;not null;index:idx_value_kind_entity,priority:1" json:"entity_kind"`
	EntityID   uint             `gorm:"not null;uniqueIndex:idx_value_entity_field,priority:1;index:idx_value_kind_entity,priority:2" json:"entity_id"`
	FieldID    uint             `gorm:"not null;uniqueIndex:idx_value_entity_field,priority:2;index" json:"field_id"`
	Value      string           `gorm:"type:text" json:"value"`
	Field      *FieldDefinition `gorm:"foreignKey:FieldID" json:"field,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// FormSection groups field definitions by key for display
type FormSection struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityKind EntityKind `gorm:"size:20;not null;uniqueIndex:idx_section_kind_key,priority:1" json:"entity_kind"`
	Key        string     `gorm:"column:section_key;size:100;not null;uniqueIndex:idx_section_kind_key,priority:2" json:"key"`
	Label      string     `gorm:"size:200;not null" json:"label"`
	SortOrder  int        `gorm:"not null;default:0" json:"sort_order"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Activity is a timeline entry against a lead or investor
type Activity struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EntityKind  EntityKind     `gorm:"size:20;not null;index:idx_activity_entity,priority:1" json:"entity_kind"`
	EntityID    uint           `gorm:"not null;index:idx_activity_entity,priority:2" json:"entity_id"`
	Type        string         `gorm:"size:50;not null" json:"type"` // note, created, imported, assigned, converted
	Title       string         `gorm:"size:255" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedBy   uint           `json:"created_by"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// Activity types
const (
	ActivityNote      = "note"
	ActivityCreated   = "created"
	ActivityImported  = "imported"
	ActivityAssigned  = "assigned"
	ActivityConverted = "converted"
)

// Assignment links a record to the user responsible for it
type Assignment struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityKind EntityKind `gorm:"size:20;not null;index:idx_assignment_entity,priority:1" json:"entity_kind"`
	EntityID   uint       `gorm:"not null;index:idx_assignment_entity,priority:2" json:"entity_id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	AssignedBy uint       `json:"assigned_by"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	AssignedAt time.Time  `json:"assigned_at"`
}

// ImportLog records the outcome of one delimited import batch
type ImportLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	BatchID      string         `gorm:"size:36;uniqueIndex;not null" json:"batch_id"`
	EntityKind   EntityKind     `gorm:"size:20;not null;index" json:"entity_kind"`
	FileName     string         `gorm:"size:255" json:"file_name"`
	TotalRows    int            `json:"total_rows"`
	SuccessCount int            `json:"success_count"`
	ErrorCount   int            `json:"error_count"`
	Errors       datatypes.JSON `json:"errors,omitempty"`
	CreatedBy    uint           `json:"created_by"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

// SystemConfig represents system-wide key/value settings
type SystemConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:config_key;uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:20;default:string" json:"type"` // string, int, bool, json
	Group     string    `gorm:"column:config_group;size:50;index" json:"group"`
	Label     string    `gorm:"size:200" json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemLog represents a system operation log
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"` // info, warning, error
	Module    string    `gorm:"size:100;index" json:"module"`
	Action    string    `gorm:"size:200;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	UserID    *uint     `json:"user_id"`
	IP        string    `gorm:"size:50" json:"ip"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Extra     string    `gorm:"type:text" json:"extra"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (FieldDefinition) TableName() string { return "field_definitions" }
func (FieldOption) TableName() string     { return "field_options" }
func (AttributeValue) TableName() string  { return "custom_field_values" }
func (FormSection) TableName() string     { return "form_sections" }
func (Activity) TableName() string        { return "activities" }
func (Assignment) TableName() string      { return "assignments" }
func (ImportLog) TableName() string       { return "import_logs" }
func (SystemConfig) TableName() string    { return "system_configs" }
func (SystemLog) TableName() string       { return "system_logs" }

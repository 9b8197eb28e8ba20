package models

import (
	"strings"
	"time"
)

// RecordBase holds the columns shared by leads and investors. Email and phone
// are nullable so the unique indexes ignore records without them.
type RecordBase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FullName  string    `gorm:"size:200;not null" json:"full_name"`
	Email     *string   `gorm:"size:255;uniqueIndex" json:"email"`
	Phone     *string   `gorm:"size:50;uniqueIndex" json:"phone"`
	Company   string    `gorm:"size:200" json:"company"`
	Source    string    `gorm:"size:50;index" json:"source"`
	Status    string    `gorm:"size:50;index" json:"status"`
	Priority  string    `gorm:"size:20" json:"priority"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedBy uint      `json:"created_by"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lead is a prospective investor moving through the pipeline
type Lead struct {
	RecordBase
}

// Investor is a converted or directly imported investor. LeadID points back at
// the lead it was promoted from; the unique index allows one conversion per lead.
type Investor struct {
	RecordBase
	LeadID *uint `gorm:"uniqueIndex" json:"lead_id"`
}

func (Lead) TableName() string     { return "leads" }
func (Investor) TableName() string { return "investors" }

// Record is implemented by *Lead and *Investor so kind-agnostic services can
// load, mutate and save either one.
type Record interface {
	Base() *RecordBase
	Kind() EntityKind
	TableName() string
}

func (l *Lead) Base() *RecordBase     { return &l.RecordBase }
func (l *Lead) Kind() EntityKind      { return KindLead }
func (i *Investor) Base() *RecordBase { return &i.RecordBase }
func (i *Investor) Kind() EntityKind  { return KindInvestor }

// NewRecord returns an empty record of the given kind, or nil for an unknown kind.
func NewRecord(kind EntityKind) Record {
	switch kind {
	case KindLead:
		return &Lead{}
	case KindInvestor:
		return &Investor{}
	}
	return nil
}

// StaticField describes a native column addressable by import/export headers
type StaticField struct {
	Name  string // machine name, also the column name
	Label string
}

// StaticFields lists native columns in export order
var StaticFields = []StaticField{
	{Name: "full_name", Label: "Full Name"},
	{Name: "email", Label: "Email"},
	{Name: "phone", Label: "Phone"},
	{Name: "company", Label: "Company"},
	{Name: "source", Label: "Source"},
	{Name: "status", Label: "Status"},
	{Name: "priority", Label: "Priority"},
	{Name: "notes", Label: "Notes"},
}

// LookupStaticField matches a header against static machine names and labels,
// ignoring case and surrounding space.
func LookupStaticField(header string) (StaticField, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, f := range StaticFields {
		if h == f.Name || h == strings.ToLower(f.Label) {
			return f, true
		}
	}
	return StaticField{}, false
}

// Get returns the native value for a static field name
func (r *RecordBase) Get(name string) string {
	switch name {
	case "full_name":
		return r.FullName
	case "email":
		return Deref(r.Email)
	case "phone":
		return Deref(r.Phone)
	case "company":
		return r.Company
	case SystemFieldSource:
		return r.Source
	case SystemFieldStatus:
		return r.Status
	case SystemFieldPriority:
		return r.Priority
	case "notes":
		return r.Notes
	}
	return ""
}

// Set writes a native value for a static field name; unknown names are ignored.
func (r *RecordBase) Set(name, value string) {
	switch name {
	case "full_name":
		r.FullName = value
	case "email":
		r.Email = NullableString(strings.ToLower(value))
	case "phone":
		r.Phone = NullableString(value)
	case "company":
		r.Company = value
	case SystemFieldSource:
		r.Source = value
	case SystemFieldStatus:
		r.Status = value
	case SystemFieldPriority:
		r.Priority = value
	case "notes":
		r.Notes = value
	}
}

// NullableString maps blank strings to nil
func NullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

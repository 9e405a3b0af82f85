package core

import (
	"fmt"
	"sync"
)

// Field is a canonical record attribute. Its value is the column name used in
// templates, exports and the clienti table.
type Field string

const (
	FieldName          Field = "name"
	FieldSite          Field = "site"
	FieldCity          Field = "city"
	FieldCategory      Field = "category"
	FieldEmail1        Field = "email_1"
	FieldEmail2        Field = "email_2"
	FieldEmail3        Field = "email_3"
	FieldPhone1        Field = "phone_1"
	FieldPhone2        Field = "phone_2"
	FieldPhone3        Field = "phone_3"
	FieldLatitude      Field = "latitude"
	FieldLongitude     Field = "longitude"
	FieldAssign        Field = "assign"
	FieldContactMethod Field = "contact_method"
	FieldDataStart     Field = "data_start"
	FieldDataFollowUp1 Field = "data_follow_up_1"
	FieldDataFollowUp2 Field = "data_follow_up_2"
	FieldStatus        Field = "status"
	FieldNote          Field = "note"
)

// RequiredFields is the fixed-order field list used for CSV templates,
// exports and missing-field diagnostics.
var RequiredFields = []Field{
	FieldName, FieldSite, FieldCity, FieldCategory,
	FieldEmail1, FieldEmail2, FieldEmail3,
	FieldPhone1, FieldPhone2, FieldPhone3,
	FieldLatitude, FieldLongitude,
	FieldAssign, FieldContactMethod,
	FieldDataStart, FieldDataFollowUp1, FieldDataFollowUp2,
	FieldStatus, FieldNote,
}

// FieldType represents the kind of value a field holds.
type FieldType int

const (
	FieldText FieldType = iota
	FieldCoordinate
	FieldDate
	FieldEmail
	FieldPhone
	FieldURL
)

// FieldSpec describes a canonical field for display and validation.
type FieldSpec struct {
	Field Field
	Label string
	Group string
	Type  FieldType
}

// Display groups, in the order they are rendered.
const (
	GroupIdentity = "Identity"
	GroupLocation = "Location"
	GroupContacts = "Contacts"
	GroupWorkflow = "Assignment & status"
	GroupDates    = "Dates"
	GroupNotes    = "Notes"
)

var groupOrder = []string{GroupIdentity, GroupLocation, GroupContacts, GroupWorkflow, GroupDates, GroupNotes}

var (
	fieldSpecs   = make(map[Field]FieldSpec)
	fieldSpecsMu sync.RWMutex
)

func init() {
	for _, spec := range []FieldSpec{
		{FieldName, "Name", GroupIdentity, FieldText},
		{FieldSite, "Website", GroupIdentity, FieldURL},
		{FieldCategory, "Category", GroupIdentity, FieldText},
		{FieldCity, "City", GroupLocation, FieldText},
		{FieldLatitude, "Latitude", GroupLocation, FieldCoordinate},
		{FieldLongitude, "Longitude", GroupLocation, FieldCoordinate},
		{FieldEmail1, "Email 1", GroupContacts, FieldEmail},
		{FieldEmail2, "Email 2", GroupContacts, FieldEmail},
		{FieldEmail3, "Email 3", GroupContacts, FieldEmail},
		{FieldPhone1, "Phone 1", GroupContacts, FieldPhone},
		{FieldPhone2, "Phone 2", GroupContacts, FieldPhone},
		{FieldPhone3, "Phone 3", GroupContacts, FieldPhone},
		{FieldAssign, "Assigned to", GroupWorkflow, FieldText},
		{FieldContactMethod, "Contact method", GroupWorkflow, FieldText},
		{FieldStatus, "Status", GroupWorkflow, FieldText},
		{FieldDataStart, "Start date", GroupDates, FieldDate},
		{FieldDataFollowUp1, "Follow-up 1", GroupDates, FieldDate},
		{FieldDataFollowUp2, "Follow-up 2", GroupDates, FieldDate},
		{FieldNote, "Note", GroupNotes, FieldText},
	} {
		RegisterField(spec)
	}
}

// RegisterField adds a field spec. Panics if the field is already registered.
func RegisterField(spec FieldSpec) {
	fieldSpecsMu.Lock()
	defer fieldSpecsMu.Unlock()

	if _, exists := fieldSpecs[spec.Field]; exists {
		panic(fmt.Sprintf("field already registered: %s", spec.Field))
	}
	fieldSpecs[spec.Field] = spec
}

// Spec returns the spec for a field.
func Spec(f Field) (FieldSpec, bool) {
	fieldSpecsMu.RLock()
	defer fieldSpecsMu.RUnlock()

	spec, ok := fieldSpecs[f]
	return spec, ok
}

// FieldGroup is a titled run of fields, in RequiredFields order.
type FieldGroup struct {
	Title  string
	Fields []FieldSpec
}

// Groups returns the field specs grouped for display.
func Groups() []FieldGroup {
	fieldSpecsMu.RLock()
	defer fieldSpecsMu.RUnlock()

	groups := make([]FieldGroup, 0, len(groupOrder))
	for _, title := range groupOrder {
		g := FieldGroup{Title: title}
		for _, f := range RequiredFields {
			if spec := fieldSpecs[f]; spec.Group == title {
				g.Fields = append(g.Fields, spec)
			}
		}
		if len(g.Fields) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// textField returns the storage slot of an optional text field, or nil for
// name and the coordinates.
func (r *Record) textField(f Field) **string {
	switch f {
	case FieldSite:
		return &r.Site
	case FieldCity:
		return &r.City
	case FieldCategory:
		return &r.Category
	case FieldEmail1:
		return &r.Email1
	case FieldEmail2:
		return &r.Email2
	case FieldEmail3:
		return &r.Email3
	case FieldPhone1:
		return &r.Phone1
	case FieldPhone2:
		return &r.Phone2
	case FieldPhone3:
		return &r.Phone3
	case FieldAssign:
		return &r.Assign
	case FieldContactMethod:
		return &r.ContactMethod
	case FieldDataStart:
		return &r.DataStart
	case FieldDataFollowUp1:
		return &r.DataFollowUp1
	case FieldDataFollowUp2:
		return &r.DataFollowUp2
	case FieldStatus:
		return &r.Status
	case FieldNote:
		return &r.Note
	}
	return nil
}

// Set assigns a raw value to a field. Coordinates are coerced with
// ParseCoordinate and left unset when the value is not a finite number.
// Returns false if the value was not stored.
func (r *Record) Set(f Field, value string) bool {
	switch f {
	case FieldName:
		r.Name = value
		return true
	case FieldLatitude, FieldLongitude:
		v, ok := ParseCoordinate(value)
		if !ok {
			return false
		}
		if f == FieldLatitude {
			r.Latitude = &v
		} else {
			r.Longitude = &v
		}
		return true
	}
	slot := r.textField(f)
	if slot == nil {
		return false
	}
	s := value
	*slot = &s
	return true
}

// Has reports whether the field holds a value.
func (r *Record) Has(f Field) bool {
	_, ok := r.Get(f)
	return ok
}

// Get returns the field value as text, formatted for CSV export.
func (r *Record) Get(f Field) (string, bool) {
	switch f {
	case FieldName:
		return r.Name, r.Name != ""
	case FieldLatitude:
		return FormatCoordinate(r.Latitude)
	case FieldLongitude:
		return FormatCoordinate(r.Longitude)
	}
	slot := r.textField(f)
	if slot == nil || *slot == nil {
		return "", false
	}
	return **slot, true
}

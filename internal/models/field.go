package models

import (
	"sort"
	"strings"
)

// FieldType enumerates the field kinds the store describes.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypePicklist  FieldType = "picklist"
	FieldTypeReference FieldType = "reference"
)

// FieldDescriptor is an immutable snapshot of one field's metadata.
type FieldDescriptor struct {
	Name           string    `json:"name"`
	Label          string    `json:"label"`
	Type           FieldType `json:"type"`
	Updateable     bool      `json:"updateable"`
	Createable     bool      `json:"createable"`
	ReferenceTo    []string  `json:"referenceTo,omitempty"`
	PicklistValues []string  `json:"picklistValues,omitempty"`
}

// FieldSet holds the described fields for one object type during one run.
// An empty set means the describe call failed and callers should treat
// unknown fields as opaque strings.
type FieldSet struct {
	ObjectType string
	fields     map[string]*FieldDescriptor
}

// NewFieldSet builds a FieldSet keyed by lowercase field name.
func NewFieldSet(objectType string, descriptors []FieldDescriptor) *FieldSet {
	fields := make(map[string]*FieldDescriptor, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		fields[strings.ToLower(d.Name)] = &d
	}
	return &FieldSet{ObjectType: objectType, fields: fields}
}

// Field looks up a descriptor by name, case-insensitively.
func (s *FieldSet) Field(name string) *FieldDescriptor {
	if s == nil || s.fields == nil {
		return nil
	}
	return s.fields[strings.ToLower(strings.TrimSpace(name))]
}

// Empty reports whether metadata is unavailable for this run.
func (s *FieldSet) Empty() bool {
	return s == nil || len(s.fields) == 0
}

// Len returns the number of described fields.
func (s *FieldSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// ReferenceFieldsTo returns the names of reference fields pointing at the
// given object type.
func (s *FieldSet) ReferenceFieldsTo(objectType string) []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, d := range s.fields {
		if d.Type != FieldTypeReference {
			continue
		}
		for _, ref := range d.ReferenceTo {
			if strings.EqualFold(ref, objectType) {
				names = append(names, d.Name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

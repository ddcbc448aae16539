package flows

import (
	"fmt"
	"regexp"
	"strings"
)

// ValueType is the type of value a contact field holds, serialized by its
// single letter code.
type ValueType string

const (
	ValueTypeText     ValueType = "T"
	ValueTypeDecimal  ValueType = "N"
	ValueTypeDatetime ValueType = "D"
	ValueTypeState    ValueType = "S"
	ValueTypeDistrict ValueType = "I"
	ValueTypeWard     ValueType = "W"
)

// contact fields can't be created with these keys
var reservedFieldKeys = map[string]bool{
	"name": true, "first_name": true, "phone": true, "language": true,
	"created_by": true, "modified_by": true, "org": true, "uuid": true, "groups": true,
}

var fieldKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
var fieldLabelRegex = regexp.MustCompile(`^[A-Za-z0-9- ]+$`)
var fieldKeyCleanRegex = regexp.MustCompile(`[^a-z0-9]+`)
var fieldLabelCleanRegex = regexp.MustCompile(`[^A-Za-z0-9- ]+`)

// Field is a custom contact field.
type Field struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Type  ValueType `json:"value_type"`

	isNew bool
}

// NewField creates a new contact field, validating the key and label.
func NewField(key, label string, valueType ValueType) (*Field, error) {
	if !IsValidFieldKey(key) {
		return nil, fmt.Errorf("field key '%s' is invalid or reserved", key)
	}
	if !IsValidFieldLabel(label) {
		return nil, fmt.Errorf("field label '%s' is invalid", label)
	}
	return &Field{Key: key, Label: label, Type: valueType}, nil
}

// IsNew returns whether this field was created during the current run rather
// than provided to it.
func (f *Field) IsNew() bool {
	return f.isNew
}

// MakeFieldKey generates a field key from a label, e.g. "Phone Again" becomes
// "phone_again".
func MakeFieldKey(label string) string {
	key := strings.TrimSpace(fieldKeyCleanRegex.ReplaceAllString(strings.ToLower(label), " "))
	return fieldKeyCleanRegex.ReplaceAllString(key, "_")
}

// IsValidFieldKey returns whether the given key is valid and not reserved.
func IsValidFieldKey(key string) bool {
	return fieldKeyRegex.MatchString(key) && !reservedFieldKeys[key]
}

// IsValidFieldLabel returns whether the given label is valid.
func IsValidFieldLabel(label string) bool {
	return fieldLabelRegex.MatchString(label)
}

// titleCase capitalizes the first letter of each space-separated word.
func titleCase(text string) string {
	words := strings.Split(text, " ")
	for w, word := range words {
		if word != "" {
			words[w] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

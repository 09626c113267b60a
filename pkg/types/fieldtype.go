package types

// Field type keys reported by the remote schema. The set a tenant uses is
// dynamic; these are the ones the resolver and orchestrator treat specially.
const (
	FieldTypeText         = "text"
	FieldTypeTextarea     = "textarea"
	FieldTypeName         = "name"
	FieldTypeSelect       = "select"
	FieldTypeMultiSelect  = "multi_select"
	FieldTypeBool         = "bool"
	FieldTypeUser         = "user"
	FieldTypeMultiUser    = "multi_user"
	FieldTypeRoleOwners   = "role_owners"
	FieldTypeRelated      = "work_item_related_select"
	FieldTypeMultiRelated = "work_item_related_multi_select"
)

// textualFieldTypes accept an empty value as an explicit clear.
var textualFieldTypes = map[string]bool{
	FieldTypeText:     true,
	FieldTypeTextarea: true,
	FieldTypeName:     true,
}

// userFieldTypes carry user keys as values.
var userFieldTypes = map[string]bool{
	FieldTypeUser:      true,
	FieldTypeMultiUser: true,
	"owner":            true,
	"creator":          true,
	"modifier":         true,
}

// relatedFieldTypes carry item IDs as values.
var relatedFieldTypes = map[string]bool{
	FieldTypeRelated:      true,
	FieldTypeMultiRelated: true,
}

// IsTextual reports whether the field type accepts empty values.
func IsTextual(fieldType string) bool { return textualFieldTypes[fieldType] }

// IsUserField reports whether the field type carries a single user key.
func IsUserField(fieldType string) bool { return userFieldTypes[fieldType] }

// IsRelatedField reports whether the field type references other items.
func IsRelatedField(fieldType string) bool { return relatedFieldTypes[fieldType] }

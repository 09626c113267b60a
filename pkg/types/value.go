package types

import "encoding/json"

// ValueKind tags the shape a resolved field value takes on the wire. The
// write API accepts a different JSON shape per field-type category; resolving
// the shape once at the boundary keeps the rest of the code off of `any`.
type ValueKind int

const (
	// ValueKindScalar is a raw string/number/bool passed through unchanged.
	ValueKindScalar ValueKind = iota
	// ValueKindOption is a single {label, value} pair.
	ValueKindOption
	// ValueKindOptions is a list of {label, value} pairs (multi-select).
	ValueKindOptions
	// ValueKindUser is a single opaque user key.
	ValueKindUser
	// ValueKindUsers is a list of opaque user keys.
	ValueKindUsers
	// ValueKindRelated is one or more related item IDs.
	ValueKindRelated
	// ValueKindRoleOwners is a list of {role, owners} pairs.
	ValueKindRoleOwners
	// ValueKindClear is an explicit empty list, clearing a multi-valued field.
	ValueKindClear
)

// OptionRef is the {label, value} pair the write API expects for selects.
type OptionRef struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RoleOwners assigns user keys to one operator role slot.
type RoleOwners struct {
	Role   string   `json:"role"`
	Owners []string `json:"owners"`
}

// FieldValue is the tagged union of write-API value shapes. Exactly one
// payload field is meaningful per Kind.
type FieldValue struct {
	Kind     ValueKind
	Scalar   any
	Option   OptionRef
	Options  []OptionRef
	UserKey  string
	UserKeys []string
	Related  []int64
	Roles    []RoleOwners
}

// ScalarValue wraps a raw value passed through unchanged.
func ScalarValue(v any) FieldValue { return FieldValue{Kind: ValueKindScalar, Scalar: v} }

// OptionValue wraps a resolved single-select pair.
func OptionValue(label, value string) FieldValue {
	return FieldValue{Kind: ValueKindOption, Option: OptionRef{Label: label, Value: value}}
}

// OptionsValue wraps resolved multi-select pairs.
func OptionsValue(refs []OptionRef) FieldValue {
	return FieldValue{Kind: ValueKindOptions, Options: refs}
}

// UserValue wraps a single user key.
func UserValue(key string) FieldValue { return FieldValue{Kind: ValueKindUser, UserKey: key} }

// UsersValue wraps a list of user keys.
func UsersValue(keys []string) FieldValue { return FieldValue{Kind: ValueKindUsers, UserKeys: keys} }

// RelatedValue wraps related item IDs.
func RelatedValue(ids []int64) FieldValue { return FieldValue{Kind: ValueKindRelated, Related: ids} }

// RoleOwnersValue wraps role-owner assignments.
func RoleOwnersValue(roles []RoleOwners) FieldValue {
	return FieldValue{Kind: ValueKindRoleOwners, Roles: roles}
}

// ClearValue is the explicit empty list that clears a multi-valued field.
func ClearValue() FieldValue { return FieldValue{Kind: ValueKindClear} }

// Wire returns the JSON-ready payload for the write API.
func (v FieldValue) Wire() any {
	switch v.Kind {
	case ValueKindOption:
		return v.Option
	case ValueKindOptions:
		return v.Options
	case ValueKindUser:
		return v.UserKey
	case ValueKindUsers:
		return v.UserKeys
	case ValueKindRelated:
		if len(v.Related) == 1 {
			return v.Related[0]
		}
		return v.Related
	case ValueKindRoleOwners:
		return v.Roles
	case ValueKindClear:
		return []any{}
	default:
		return v.Scalar
	}
}

// FieldPatch is one resolved (field, value) edit ready to be written. Name is
// the caller-supplied display name, kept for result reporting; only Key and
// the wire value are serialized.
type FieldPatch struct {
	Key   string
	Name  string
	Value FieldValue
}

// MarshalJSON emits the write-API shape {"field_key": ..., "field_value": ...}.
func (p FieldPatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FieldKey   string `json:"field_key"`
		FieldValue any    `json:"field_value"`
	}{FieldKey: p.Key, FieldValue: p.Value.Wire()})
}

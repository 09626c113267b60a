package types

import (
	"reflect"
	"testing"
)

func TestFieldValueWire(t *testing.T) {
	tests := []struct {
		name  string
		value FieldValue
		want  any
	}{
		{"scalar string", ScalarValue("hello"), "hello"},
		{"scalar bool", ScalarValue(true), true},
		{"option", OptionValue("P1", "opt_p1"), OptionRef{Label: "P1", Value: "opt_p1"}},
		{"options", OptionsValue([]OptionRef{{Label: "A", Value: "a"}}), []OptionRef{{Label: "A", Value: "a"}}},
		{"user", UserValue("user_jane"), "user_jane"},
		{"users", UsersValue([]string{"user_jane", "user_ming"}), []string{"user_jane", "user_ming"}},
		{"single related collapses to bare id", RelatedValue([]int64{42}), int64(42)},
		{"multiple related stay a list", RelatedValue([]int64{1, 2}), []int64{1, 2}},
		{"role owners", RoleOwnersValue([]RoleOwners{{Role: "r", Owners: []string{"u"}}}), []RoleOwners{{Role: "r", Owners: []string{"u"}}}},
		{"clear is an empty list", ClearValue(), []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Wire(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Wire() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFieldPatchMarshal(t *testing.T) {
	patch := FieldPatch{Key: "field_priority", Name: "priority", Value: OptionValue("P1", "opt_p1")}
	data, err := patch.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `{"field_key":"field_priority","field_value":{"label":"P1","value":"opt_p1"}}`
	if string(data) != want {
		t.Errorf("MarshalJSON = %s, want %s", data, want)
	}
}

func TestFieldTypePredicates(t *testing.T) {
	if !IsTextual(FieldTypeTextarea) || IsTextual(FieldTypeSelect) {
		t.Error("IsTextual misclassified")
	}
	for _, ft := range []string{FieldTypeUser, FieldTypeMultiUser, "owner", "creator", "modifier"} {
		if !IsUserField(ft) {
			t.Errorf("IsUserField(%q) = false", ft)
		}
	}
	if IsUserField(FieldTypeText) {
		t.Error("IsUserField matched a text field")
	}
	if !IsRelatedField(FieldTypeRelated) || !IsRelatedField(FieldTypeMultiRelated) {
		t.Error("IsRelatedField misclassified")
	}
}

func TestFailedCount(t *testing.T) {
	results := []UpdateResult{
		{Success: true},
		{Success: false, Message: "resolution failed"},
		{Success: false, Message: "retries exhausted"},
	}
	if got := Failed(results); got != 2 {
		t.Errorf("Failed = %d, want 2", got)
	}
	if got := Failed(nil); got != 0 {
		t.Errorf("Failed(nil) = %d, want 0", got)
	}
}

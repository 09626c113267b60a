package types

// Workspace is a tenant-level container for item types, fields, and items.
type Workspace struct {
	Name string `json:"name"`
	Key  string `json:"project_key"`
}

// ItemType is a schema definition (e.g. "Bug") scoped to a workspace.
type ItemType struct {
	Name string `json:"name"`
	Key  string `json:"type_key"`
}

// FieldDefinition describes one named, typed attribute of an item type.
// Alias is an optional secondary name the service accepts for the field.
// Options is populated for select-like fields and may form a tree.
type FieldDefinition struct {
	Name    string   `json:"field_name"`
	Alias   string   `json:"field_alias,omitempty"`
	Key     string   `json:"field_key"`
	Type    string   `json:"field_type_key"`
	Options []Option `json:"options,omitempty"`
}

// Option is one selectable value of a select-type field. Children nest for
// tree-select fields and are flattened before caching.
type Option struct {
	Label    string   `json:"label"`
	Value    string   `json:"value"`
	Children []Option `json:"children,omitempty"`
}

// Role is a named operator slot on a workflow-state field, addressed by an
// opaque role key.
type Role struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// User identifies one member of the tenant. Name and Email both resolve to
// the same opaque key.
type User struct {
	Name    string `json:"name_cn,omitempty"`
	AltName string `json:"name_en,omitempty"`
	Email   string `json:"email,omitempty"`
	Key     string `json:"user_key"`
}

// DisplayName returns the first non-empty human-readable identifier.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.AltName != "" {
		return u.AltName
	}
	return u.Email
}

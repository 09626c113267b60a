package types

// FieldInstance is one field as it appears on a fetched item. Value keeps the
// remote's dynamic shape (scalar, {label,value} object, or a list); readers
// go through the extraction helpers in internal/items.
type FieldInstance struct {
	Key   string `json:"field_key"`
	Name  string `json:"field_name,omitempty"`
	Type  string `json:"field_type_key,omitempty"`
	Value any    `json:"field_value"`
}

// Item is one work item as returned by the remote query APIs.
type Item struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	WorkspaceKey string          `json:"project_key,omitempty"`
	TypeKey      string          `json:"work_item_type_key,omitempty"`
	Owner        string          `json:"owner,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	UpdatedBy    string          `json:"updated_by,omitempty"`
	Fields       []FieldInstance `json:"fields,omitempty"`
}

// Field returns the instance with the given key, or nil.
func (it *Item) Field(key string) *FieldInstance {
	for i := range it.Fields {
		if it.Fields[i].Key == key {
			return &it.Fields[i]
		}
	}
	return nil
}

// Page is the normalized pagination envelope. The remote sometimes answers
// with a bare list and sometimes with an object carrying pagination; callers
// always see this shape. Hint is set when a result was produced by a bounded
// client-side scan and carries advice for narrowing the query.
type Page struct {
	Items    []Item `json:"items"`
	Total    int    `json:"total"`
	PageNum  int    `json:"page_num"`
	PageSize int    `json:"page_size"`
	Hint     string `json:"hint,omitempty"`
}

// SearchParam is one condition of a server-side search.
type SearchParam struct {
	FieldKey string `json:"field_key"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// SearchGroup combines conditions under one conjunction.
type SearchGroup struct {
	Conjunction string        `json:"conjunction"`
	Params      []SearchParam `json:"search_params"`
	Groups      []SearchGroup `json:"search_groups"`
}

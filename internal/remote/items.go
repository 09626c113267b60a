package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pivotstack/worktrack/pkg/types"
)

// CreateItem creates a work item and returns its ID. The create endpoint is
// inconsistent about its payload shape (bare int, object, or single-element
// list), so all three are accepted.
func (c *Client) CreateItem(ctx context.Context, workspaceKey, typeKey, name string, patches []types.FieldPatch) (int64, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/create", workspaceKey)
	payload := map[string]any{
		"work_item_type_key": typeKey,
		"name":               name,
	}
	if len(patches) > 0 {
		payload["field_value_pairs"] = patches
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, payload, &raw); err != nil {
		return 0, fmt.Errorf("create item: %w", err)
	}
	id, ok := decodeCreatedID(raw)
	if !ok {
		return 0, fmt.Errorf("create item: response carried no id")
	}
	return id, nil
}

func decodeCreatedID(raw json.RawMessage) (int64, bool) {
	var id int64
	if json.Unmarshal(raw, &id) == nil && id != 0 {
		return id, true
	}
	var obj struct {
		ID int64 `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.ID != 0 {
		return obj.ID, true
	}
	var list []struct {
		ID int64 `json:"id"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 && list[0].ID != 0 {
		return list[0].ID, true
	}
	return 0, false
}

// QueryItems fetches items of one type by ID.
func (c *Client) QueryItems(ctx context.Context, workspaceKey, typeKey string, ids []int64) ([]types.Item, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/query", workspaceKey, typeKey)
	payload := map[string]any{"work_item_ids": ids}
	var out []types.Item
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return out, nil
}

// UpdateItem applies field patches to one item in a single compound write.
func (c *Client) UpdateItem(ctx context.Context, workspaceKey, typeKey string, id int64, patches []types.FieldPatch) error {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/%d", workspaceKey, typeKey, id)
	payload := map[string]any{"update_fields": patches}
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	return nil
}

// DeleteItem removes one item.
func (c *Client) DeleteItem(ctx context.Context, workspaceKey, typeKey string, id int64) error {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/%d", workspaceKey, typeKey, id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// FilterOptions narrows a FilterItems call. Zero fields are omitted from the
// request.
type FilterOptions struct {
	NameKeyword string
	Statuses    []string
	Fields      []string
	PageNum     int
	PageSize    int
}

// FilterItems lists items by type with optional keyword/status narrowing.
func (c *Client) FilterItems(ctx context.Context, workspaceKey string, typeKeys []string, opts FilterOptions) (*ItemPage, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/filter", workspaceKey)
	payload := map[string]any{
		"work_item_type_keys": typeKeys,
		"page_num":            opts.PageNum,
		"page_size":           opts.PageSize,
	}
	if opts.NameKeyword != "" {
		payload["work_item_name"] = opts.NameKeyword
	}
	if len(opts.Statuses) > 0 {
		payload["work_item_status"] = opts.Statuses
	}
	if len(opts.Fields) > 0 {
		payload["fields"] = opts.Fields
	}
	var page ItemPage
	if err := c.do(ctx, http.MethodPost, path, payload, &page); err != nil {
		return nil, fmt.Errorf("filter items: %w", err)
	}
	return &page, nil
}

// SearchItems runs a condition-group search against one item type.
func (c *Client) SearchItems(ctx context.Context, workspaceKey, typeKey string, group types.SearchGroup, pageNum, pageSize int, fields []string) (*ItemPage, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/%s/search_params", workspaceKey, typeKey)
	payload := map[string]any{
		"search_group": group,
		"page_num":     pageNum,
		"page_size":    pageSize,
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	var page ItemPage
	if err := c.do(ctx, http.MethodPost, path, payload, &page); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return &page, nil
}

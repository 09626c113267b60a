package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pivotstack/worktrack/pkg/types"
)

// ListWorkspaceKeys returns the opaque keys of every workspace the token can
// see. Names require a follow-up WorkspaceDetails call.
func (c *Client) ListWorkspaceKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.do(ctx, http.MethodPost, "/open_api/projects", map[string]any{}, &keys); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return keys, nil
}

// WorkspaceDetails resolves workspace keys to their details, keyed by
// workspace key.
func (c *Client) WorkspaceDetails(ctx context.Context, keys []string) (map[string]types.Workspace, error) {
	payload := map[string]any{"project_keys": keys}
	var details map[string]types.Workspace
	if err := c.do(ctx, http.MethodPost, "/open_api/projects/detail", payload, &details); err != nil {
		return nil, fmt.Errorf("workspace details: %w", err)
	}
	return details, nil
}

// ListItemTypes returns the item types defined in a workspace.
func (c *Client) ListItemTypes(ctx context.Context, workspaceKey string) ([]types.ItemType, error) {
	path := fmt.Sprintf("/open_api/%s/work_item/all-types", workspaceKey)
	var out []types.ItemType
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list item types: %w", err)
	}
	return out, nil
}

// ListFields returns every field definition, including option sets, for one
// item type.
func (c *Client) ListFields(ctx context.Context, workspaceKey, typeKey string) ([]types.FieldDefinition, error) {
	path := fmt.Sprintf("/open_api/%s/field/all", workspaceKey)
	payload := map[string]any{"work_item_type_key": typeKey}
	var out []types.FieldDefinition
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return out, nil
}

// SearchUsers searches the tenant's directory by name or email fragment.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]types.User, error) {
	payload := map[string]any{"query": query}
	var out []types.User
	if err := c.do(ctx, http.MethodPost, "/open_api/user/search", payload, &out); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return out, nil
}

// QueryUsers resolves opaque user keys to user details.
func (c *Client) QueryUsers(ctx context.Context, userKeys []string) ([]types.User, error) {
	payload := map[string]any{"user_keys": userKeys}
	var out []types.User
	if err := c.do(ctx, http.MethodPost, "/open_api/user/query", payload, &out); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return out, nil
}

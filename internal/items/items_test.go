package items

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pivotstack/worktrack/internal/metadata"
	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

// fakeEnv backs both the metadata resolver and the item transport in tests.
type fakeEnv struct {
	mu sync.Mutex

	itemTypes []types.ItemType
	fields    []types.FieldDefinition
	users     []types.User

	// recorded write calls
	updates []updateCall
	creates []createCall

	// per-call overrides
	updateErr func(call int, id int64, patches []types.FieldPatch) error
	queryFn   func(typeKey string, ids []int64) ([]types.Item, error)
	filterFn  func(typeKeys []string, opts remote.FilterOptions) (*remote.ItemPage, error)
	searchFn  func(typeKey string, group types.SearchGroup, pageNum, pageSize int) (*remote.ItemPage, error)

	queryCalls  int
	filterCalls int
	searchCalls int
}

type updateCall struct {
	typeKey string
	id      int64
	patches []types.FieldPatch
}

type createCall struct {
	typeKey string
	name    string
	patches []types.FieldPatch
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		itemTypes: []types.ItemType{
			{Name: "Issue", Key: "type_issue"},
			{Name: "Story", Key: "type_story"},
		},
		fields: []types.FieldDefinition{
			{Name: "priority", Key: "field_priority", Type: types.FieldTypeSelect, Options: []types.Option{
				{Label: "P0", Value: "opt_p0"},
				{Label: "P1", Value: "opt_p1"},
				{Label: "P2", Value: "opt_p2"},
			}},
			{Name: "status", Key: "field_status", Type: types.FieldTypeSelect, Options: []types.Option{
				{Label: "Open", Value: "opt_open"},
				{Label: "Done", Value: "opt_done"},
			}},
			{Name: "tags", Key: "field_tags", Type: types.FieldTypeMultiSelect, Options: []types.Option{
				{Label: "Frontend", Value: "opt_fe"},
				{Label: "Backend", Value: "opt_be"},
			}},
			{Name: "blocked", Key: "field_blocked", Type: types.FieldTypeBool},
			{Name: "description", Key: "field_description", Type: types.FieldTypeTextarea},
			{Name: "owner", Key: "owner", Type: types.FieldTypeUser},
			{Name: "parent", Key: "field_parent", Type: types.FieldTypeRelated},
			{Name: "operator role", Key: "current_status_operator_role", Type: types.FieldTypeSelect, Options: []types.Option{
				{Label: "Reviewer", Value: "type_issue_role_reviewer"},
			}},
		},
		users: []types.User{
			{Name: "Jane Doe", Email: "jane@example.com", Key: "user_jane"},
			{Name: "Ming Wang", Key: "user_ming"},
		},
	}
}

// ---- metadata.API ----

func (f *fakeEnv) ListWorkspaceKeys(context.Context) ([]string, error) {
	return []string{"proj_main"}, nil
}

func (f *fakeEnv) WorkspaceDetails(_ context.Context, _ []string) (map[string]types.Workspace, error) {
	return map[string]types.Workspace{"proj_main": {Name: "Main", Key: "proj_main"}}, nil
}

func (f *fakeEnv) ListItemTypes(context.Context, string) ([]types.ItemType, error) {
	return f.itemTypes, nil
}

func (f *fakeEnv) ListFields(context.Context, string, string) ([]types.FieldDefinition, error) {
	return f.fields, nil
}

func (f *fakeEnv) SearchUsers(_ context.Context, q string) ([]types.User, error) {
	var out []types.User
	for _, u := range f.users {
		if u.Name == q || u.Email == q {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeEnv) QueryUsers(_ context.Context, keys []string) ([]types.User, error) {
	var out []types.User
	for _, u := range f.users {
		for _, k := range keys {
			if u.Key == k {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

// ---- Remote ----

func (f *fakeEnv) CreateItem(_ context.Context, _, typeKey, name string, patches []types.FieldPatch) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{typeKey: typeKey, name: name, patches: patches})
	return 90001, nil
}

func (f *fakeEnv) QueryItems(_ context.Context, _, typeKey string, ids []int64) ([]types.Item, error) {
	f.mu.Lock()
	f.queryCalls++
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(typeKey, ids)
	}
	return nil, nil
}

func (f *fakeEnv) UpdateItem(_ context.Context, _, typeKey string, id int64, patches []types.FieldPatch) error {
	f.mu.Lock()
	f.updates = append(f.updates, updateCall{typeKey: typeKey, id: id, patches: patches})
	call := len(f.updates)
	fn := f.updateErr
	f.mu.Unlock()
	if fn != nil {
		return fn(call, id, patches)
	}
	return nil
}

func (f *fakeEnv) DeleteItem(context.Context, string, string, int64) error { return nil }

func (f *fakeEnv) FilterItems(_ context.Context, _ string, typeKeys []string, opts remote.FilterOptions) (*remote.ItemPage, error) {
	f.mu.Lock()
	f.filterCalls++
	fn := f.filterFn
	f.mu.Unlock()
	if fn != nil {
		return fn(typeKeys, opts)
	}
	return &remote.ItemPage{}, nil
}

func (f *fakeEnv) SearchItems(_ context.Context, _, typeKey string, group types.SearchGroup, pageNum, pageSize int, _ []string) (*remote.ItemPage, error) {
	f.mu.Lock()
	f.searchCalls++
	fn := f.searchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(typeKey, group, pageNum, pageSize)
	}
	return &remote.ItemPage{}, nil
}

func (f *fakeEnv) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeEnv) updateAt(i int) updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[i]
}

func newTestProvider(env *fakeEnv) *Provider {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	meta := metadata.NewResolver(env, metadata.Config{Logger: logger})
	p, err := NewProvider(env, meta, Config{
		WorkspaceName: "Main",
		TypeName:      "Issue",
		Logger:        logger,
	})
	if err != nil {
		panic(fmt.Sprintf("test provider: %v", err))
	}
	p.retryBase = time.Millisecond
	return p
}

func rateLimitErr() error {
	return &types.RemoteError{HTTPStatus: 429, Message: "Too Many Requests"}
}

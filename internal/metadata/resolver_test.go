package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivotstack/worktrack/pkg/types"
)

// fakeAPI implements API with overridable behavior and call counters.
type fakeAPI struct {
	listWorkspaceKeys func(ctx context.Context) ([]string, error)
	workspaceDetails  func(ctx context.Context, keys []string) (map[string]types.Workspace, error)
	listItemTypes     func(ctx context.Context, ws string) ([]types.ItemType, error)
	listFields        func(ctx context.Context, ws, tk string) ([]types.FieldDefinition, error)
	searchUsers       func(ctx context.Context, q string) ([]types.User, error)
	queryUsers        func(ctx context.Context, keys []string) ([]types.User, error)

	workspaceCalls atomic.Int32
	typeCalls      atomic.Int32
	fieldCalls     atomic.Int32
	searchCalls    atomic.Int32
	queryCalls     atomic.Int32
}

func (f *fakeAPI) ListWorkspaceKeys(ctx context.Context) ([]string, error) {
	f.workspaceCalls.Add(1)
	if f.listWorkspaceKeys != nil {
		return f.listWorkspaceKeys(ctx)
	}
	return []string{"proj_alpha", "proj_beta"}, nil
}

func (f *fakeAPI) WorkspaceDetails(ctx context.Context, keys []string) (map[string]types.Workspace, error) {
	if f.workspaceDetails != nil {
		return f.workspaceDetails(ctx, keys)
	}
	return map[string]types.Workspace{
		"proj_alpha": {Name: "Alpha", Key: "proj_alpha"},
		"proj_beta":  {Name: "Beta", Key: "proj_beta"},
	}, nil
}

func (f *fakeAPI) ListItemTypes(ctx context.Context, ws string) ([]types.ItemType, error) {
	f.typeCalls.Add(1)
	if f.listItemTypes != nil {
		return f.listItemTypes(ctx, ws)
	}
	return []types.ItemType{
		{Name: "Task", Key: "type_task"},
		{Name: "Defect", Key: "type_defect"},
	}, nil
}

func (f *fakeAPI) ListFields(ctx context.Context, ws, tk string) ([]types.FieldDefinition, error) {
	f.fieldCalls.Add(1)
	if f.listFields != nil {
		return f.listFields(ctx, ws, tk)
	}
	return defaultFields(), nil
}

func (f *fakeAPI) SearchUsers(ctx context.Context, q string) ([]types.User, error) {
	f.searchCalls.Add(1)
	if f.searchUsers != nil {
		return f.searchUsers(ctx, q)
	}
	return nil, nil
}

func (f *fakeAPI) QueryUsers(ctx context.Context, keys []string) ([]types.User, error) {
	f.queryCalls.Add(1)
	if f.queryUsers != nil {
		return f.queryUsers(ctx, keys)
	}
	return nil, nil
}

func defaultFields() []types.FieldDefinition {
	return []types.FieldDefinition{
		{Name: "Priority", Key: "field_priority", Type: types.FieldTypeSelect, Options: []types.Option{
			{Label: "High", Value: "opt_high"},
			{Label: "Low", Value: "opt_low"},
		}},
		{Name: "Summary ", Alias: "Title", Key: "field_summary", Type: types.FieldTypeText},
		{Name: "Capacity", Key: "field_capacity", Type: types.FieldTypeSelect, Options: []types.Option{
			{Label: "512 GB", Value: "opt_512gb"},
			{Label: "1 TB", Value: "opt_1tb"},
		}},
		{Name: "Operator Role", Key: "current_status_operator_role", Type: types.FieldTypeSelect, Options: []types.Option{
			{Label: "Reviewer", Value: "type_task_role_reviewer"},
			{Label: "Assignee", Value: "role_assignee"},
		}},
	}
}

func newTestResolver(api API) *Resolver {
	return NewResolver(api, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestResolveWorkspaceKey(t *testing.T) {
	api := &fakeAPI{}
	r := newTestResolver(api)
	ctx := context.Background()

	key, err := r.ResolveWorkspaceKey(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "proj_alpha", key)

	// Sibling name was seeded by the same fetch.
	key, err = r.ResolveWorkspaceKey(ctx, "Beta")
	require.NoError(t, err)
	assert.Equal(t, "proj_beta", key)
	assert.Equal(t, int32(1), api.workspaceCalls.Load())

	_, err = r.ResolveWorkspaceKey(ctx, "Gamma")
	var nfe *types.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, types.KindWorkspace, nfe.Kind)
	assert.Contains(t, nfe.Alternatives, "Alpha")
}

func TestResolveWorkspaceKeyNoWorkspaces(t *testing.T) {
	api := &fakeAPI{
		listWorkspaceKeys: func(context.Context) ([]string, error) { return nil, nil },
	}
	r := newTestResolver(api)

	_, err := r.ResolveWorkspaceKey(context.Background(), "Alpha")
	assert.ErrorIs(t, err, types.ErrNoWorkspaces)
}

func TestListWorkspacesUsesCachedDirectory(t *testing.T) {
	api := &fakeAPI{}
	r := newTestResolver(api)
	ctx := context.Background()

	_, err := r.ResolveWorkspaceKey(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.workspaceCalls.Load())

	byName, err := r.ListWorkspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Alpha": "proj_alpha", "Beta": "proj_beta"}, byName)
	assert.Equal(t, int32(1), api.workspaceCalls.Load(), "fresh bucket should serve the list")

	// The other direction too: a list seeds name resolution.
	api2 := &fakeAPI{}
	r2 := newTestResolver(api2)
	_, err = r2.ListWorkspaces(ctx)
	require.NoError(t, err)
	key, err := r2.ResolveWorkspaceKey(ctx, "Beta")
	require.NoError(t, err)
	assert.Equal(t, "proj_beta", key)
	assert.Equal(t, int32(1), api2.workspaceCalls.Load())
}

func TestExpiredBucketRefetchesOnce(t *testing.T) {
	api := &fakeAPI{}
	r := NewResolver(api, Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		BucketTTL: 20 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.typeCalls.Load())

	time.Sleep(40 * time.Millisecond)

	_, err = r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	_, err = r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.typeCalls.Load(), "expiry should cost exactly one fresh fetch")
}

func TestWorkspaceBucketsLoadIndependently(t *testing.T) {
	var mu sync.Mutex
	typeFetches := map[string]int{}
	api := &fakeAPI{
		listItemTypes: func(_ context.Context, ws string) ([]types.ItemType, error) {
			mu.Lock()
			typeFetches[ws]++
			mu.Unlock()
			return []types.ItemType{{Name: "Task", Key: "type_task"}}, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	_, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	_, err = r.ResolveFieldKey(ctx, "proj_alpha", "type_task", "Priority")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, map[string]int{"proj_alpha": 1}, typeFetches, "no other workspace bucket should load")
	mu.Unlock()
	assert.Equal(t, int32(1), api.fieldCalls.Load())

	_, err = r.ResolveTypeKey(ctx, "proj_beta", "Task")
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, map[string]int{"proj_alpha": 1, "proj_beta": 1}, typeFetches)
	mu.Unlock()
}

func TestConcurrentResolutionsShareOneFetch(t *testing.T) {
	api := &fakeAPI{
		listItemTypes: func(context.Context, string) ([]types.ItemType, error) {
			time.Sleep(30 * time.Millisecond)
			return []types.ItemType{{Name: "Task", Key: "type_task"}}, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
			assert.NoError(t, err)
			assert.Equal(t, "type_task", key)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), api.typeCalls.Load())
}

func TestFailedBucketLoadIsNotCached(t *testing.T) {
	boom := errors.New("remote unavailable")
	var fail atomic.Bool
	fail.Store(true)
	api := &fakeAPI{
		listItemTypes: func(context.Context, string) ([]types.ItemType, error) {
			if fail.Load() {
				return nil, boom
			}
			return []types.ItemType{{Name: "Task", Key: "type_task"}}, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	_, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.ErrorIs(t, err, boom)

	fail.Store(false)
	key, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	assert.Equal(t, "type_task", key)
	assert.Equal(t, int32(2), api.typeCalls.Load())
}

func TestResolveTypeKeyListsAlternatives(t *testing.T) {
	api := &fakeAPI{}
	r := newTestResolver(api)

	_, err := r.ResolveTypeKey(context.Background(), "proj_alpha", "Epic")
	var nfe *types.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.ElementsMatch(t, []string{"Task", "Defect"}, nfe.Alternatives)
}

func TestResolveFieldKey(t *testing.T) {
	api := &fakeAPI{}
	r := newTestResolver(api)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "exact", input: "Priority", want: "field_priority"},
		{name: "alias", input: "Title", want: "field_summary"},
		{name: "trailing whitespace in schema", input: "Summary", want: "field_summary"},
		{name: "key passthrough", input: "field_priority", want: "field_priority"},
		{name: "unknown key prefix passthrough", input: "field_custom_xyz", want: "field_custom_xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveFieldKey(ctx, "proj_alpha", "type_task", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.ResolveFieldKey(ctx, "proj_alpha", "type_task", "Severity")
	var nfe *types.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, types.KindField, nfe.Kind)
	assert.NotEmpty(t, nfe.Alternatives)

	// All resolutions above share one bundle fetch.
	assert.Equal(t, int32(1), api.fieldCalls.Load())
}

func TestFieldNameAndType(t *testing.T) {
	r := newTestResolver(&fakeAPI{})
	ctx := context.Background()

	name, err := r.FieldName(ctx, "proj_alpha", "type_task", "field_priority")
	require.NoError(t, err)
	assert.Equal(t, "Priority", name)

	ft, err := r.FieldType(ctx, "proj_alpha", "type_task", "field_priority")
	require.NoError(t, err)
	assert.Equal(t, types.FieldTypeSelect, ft)

	_, err = r.FieldType(ctx, "proj_alpha", "type_task", "field_missing")
	assert.True(t, types.IsNotFound(err))
}

func TestResolveOptionValue(t *testing.T) {
	r := newTestResolver(&fakeAPI{})
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		input string
		want  string
	}{
		{name: "exact label", field: "field_priority", input: "High", want: "opt_high"},
		{name: "value passthrough", field: "field_priority", input: "opt_low", want: "opt_low"},
		{name: "case and spacing", field: "field_capacity", input: "512gb", want: "opt_512gb"},
		{name: "unit completion", field: "field_capacity", input: "512 G", want: "opt_512gb"},
		{name: "unique substring", field: "field_priority", input: "Hig", want: "opt_high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveOptionValue(ctx, "proj_alpha", "type_task", tt.field, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.ResolveOptionValue(ctx, "proj_alpha", "type_task", "field_priority", "Urgent")
	var nfe *types.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, types.KindOption, nfe.Kind)
}

func TestResolveOptionValueAmbiguous(t *testing.T) {
	api := &fakeAPI{
		listFields: func(context.Context, string, string) ([]types.FieldDefinition, error) {
			return []types.FieldDefinition{
				{Name: "Stage", Key: "field_stage", Type: types.FieldTypeSelect, Options: []types.Option{
					{Label: "Review Pending", Value: "opt_pending"},
					{Label: "Review Done", Value: "opt_done"},
				}},
			}, nil
		},
	}
	r := newTestResolver(api)

	_, err := r.ResolveOptionValue(context.Background(), "proj_alpha", "type_task", "field_stage", "Review")
	var nfe *types.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.ElementsMatch(t, []string{"Review Pending", "Review Done"}, nfe.Candidates)
}

func TestNestedOptionsFlatten(t *testing.T) {
	api := &fakeAPI{
		listFields: func(context.Context, string, string) ([]types.FieldDefinition, error) {
			return []types.FieldDefinition{
				{Name: "Region", Key: "field_region", Type: types.FieldTypeSelect, Options: []types.Option{
					{Label: "EMEA", Value: "opt_emea", Children: []types.Option{
						{Label: "Berlin", Value: "opt_berlin"},
					}},
				}},
			}, nil
		},
	}
	r := newTestResolver(api)

	got, err := r.ResolveOptionValue(context.Background(), "proj_alpha", "type_task", "field_region", "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "opt_berlin", got)
}

func TestResolveRoleKey(t *testing.T) {
	r := newTestResolver(&fakeAPI{})
	ctx := context.Background()

	key, err := r.ResolveRoleKey(ctx, "proj_alpha", "type_task", "Reviewer")
	require.NoError(t, err)
	assert.Equal(t, "role_reviewer", key)

	// Bare role keys in the option values work too.
	key, err = r.ResolveRoleKey(ctx, "proj_alpha", "type_task", "Assignee")
	require.NoError(t, err)
	assert.Equal(t, "role_assignee", key)

	// Already a key.
	key, err = r.ResolveRoleKey(ctx, "proj_alpha", "type_task", "role_reviewer")
	require.NoError(t, err)
	assert.Equal(t, "role_reviewer", key)

	// Case-insensitive fallback.
	key, err = r.ResolveRoleKey(ctx, "proj_alpha", "type_task", " reviewer ")
	require.NoError(t, err)
	assert.Equal(t, "role_reviewer", key)

	_, err = r.ResolveRoleKey(ctx, "proj_alpha", "type_task", "Ghost")
	assert.True(t, types.IsNotFound(err))
}

func TestResolveRoleName(t *testing.T) {
	r := newTestResolver(&fakeAPI{})
	ctx := context.Background()

	name, err := r.ResolveRoleName(ctx, "proj_alpha", "type_task", "role_reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", name)

	// Prefixed keys match on suffix.
	name, err = r.ResolveRoleName(ctx, "proj_alpha", "type_task", "type_task_role_reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", name)
}

func TestInvalidateAllForcesRefetch(t *testing.T) {
	api := &fakeAPI{}
	r := newTestResolver(api)
	ctx := context.Background()

	_, err := r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	_, err = r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.typeCalls.Load())

	r.InvalidateAll()

	_, err = r.ResolveTypeKey(ctx, "proj_alpha", "Task")
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.typeCalls.Load())
}

func TestSuffixRoleParser(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "type_task_role_owner", want: "role_owner"},
		{in: "role_owner", want: "role_owner"},
		{in: "abc_owner", want: "role_owner"},
		{in: "owner", want: "role_owner"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SuffixRoleParser{}.ParseRoleKey(tt.in), "input %q", tt.in)
	}
}

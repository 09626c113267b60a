package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivotstack/worktrack/pkg/types"
)

func testScope(t *testing.T, p *Provider) (string, string) {
	t.Helper()
	wsKey, typeKey, err := p.scope(context.Background())
	require.NoError(t, err)
	return wsKey, typeKey
}

func TestResolveWriteValueSelect(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)
	ctx := context.Background()

	v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_priority", "priority", "P1")
	require.NoError(t, err)
	assert.Equal(t, types.ValueKindOption, v.Kind)
	assert.Equal(t, types.OptionRef{Label: "P1", Value: "opt_p1"}, v.Option)
}

func TestResolveWriteValueMultiSelect(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)
	ctx := context.Background()

	t.Run("blank clears", func(t *testing.T) {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "")
		require.NoError(t, err)
		assert.Equal(t, types.ValueKindClear, v.Kind)
		assert.Equal(t, []any{}, v.Wire())
	})

	t.Run("single value wraps in a list", func(t *testing.T) {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "Frontend")
		require.NoError(t, err)
		assert.Equal(t, types.ValueKindOptions, v.Kind)
		assert.Equal(t, []types.OptionRef{{Label: "Frontend", Value: "opt_fe"}}, v.Options)
	})

	t.Run("delimited string splits", func(t *testing.T) {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "Frontend, Backend")
		require.NoError(t, err)
		require.Equal(t, types.ValueKindOptions, v.Kind)
		assert.Equal(t, []types.OptionRef{
			{Label: "Frontend", Value: "opt_fe"},
			{Label: "Backend", Value: "opt_be"},
		}, v.Options)
	})

	t.Run("list input", func(t *testing.T) {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", []string{"Backend"})
		require.NoError(t, err)
		assert.Equal(t, []types.OptionRef{{Label: "Backend", Value: "opt_be"}}, v.Options)
	})

	t.Run("free text is refused", func(t *testing.T) {
		_, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "Sideways")
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "tags", verr.Field)
	})

	t.Run("one bad element fails the whole list", func(t *testing.T) {
		// The whole string is ambiguous between Frontend and Backend, so it
		// splits; "Sideways" then fails every element.
		_, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "Frontend, Backend, Sideways")
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "Sideways")
	})

	t.Run("whole string fuzzy-matches before splitting", func(t *testing.T) {
		// "Frontend" is the unique substring match for the whole input, so
		// no split happens and the input resolves as one option.
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_tags", "tags", "Frontend, Sideways")
		require.NoError(t, err)
		require.Equal(t, types.ValueKindOptions, v.Kind)
		require.Len(t, v.Options, 1)
		assert.Equal(t, "opt_fe", v.Options[0].Value)
	})
}

func TestResolveWriteValueDelimiterWholeStringFirst(t *testing.T) {
	env := newFakeEnv()
	env.fields = append(env.fields, types.FieldDefinition{
		Name: "stage", Key: "field_stage", Type: types.FieldTypeSelect,
		Options: []types.Option{
			{Label: "Ready, set, go", Value: "opt_ready"},
			{Label: "Parked", Value: "opt_parked"},
		},
	})
	p := newTestProvider(env)
	wsKey, typeKey := testScope(t, p)

	// The label itself contains a delimiter; it must resolve whole.
	v, err := p.resolveWriteValue(context.Background(), wsKey, typeKey, "field_stage", "stage", "Ready, set, go")
	require.NoError(t, err)
	assert.Equal(t, types.ValueKindOption, v.Kind)
	assert.Equal(t, "opt_ready", v.Option.Value)
}

func TestResolveWriteValueBool(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)
	ctx := context.Background()

	for _, in := range []string{"true", "YES", "on", "1"} {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_blocked", "blocked", in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, true, v.Wire(), "input %q", in)
	}
	for _, in := range []string{"false", "No", "off", "0"} {
		v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_blocked", "blocked", in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, false, v.Wire(), "input %q", in)
	}

	v, err := p.resolveWriteValue(ctx, wsKey, typeKey, "field_blocked", "blocked", true)
	require.NoError(t, err)
	assert.Equal(t, true, v.Wire())

	_, err = p.resolveWriteValue(ctx, wsKey, typeKey, "field_blocked", "blocked", "maybe")
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "true/yes/on/1")
}

func TestResolveWriteValueTextFallback(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)

	v, err := p.resolveWriteValue(context.Background(), wsKey, typeKey, "field_description", "description", "anything goes, even with commas")
	require.NoError(t, err)
	assert.Equal(t, types.ValueKindScalar, v.Kind)
	assert.Equal(t, "anything goes, even with commas", v.Wire())
}

func TestResolveWriteValueUserField(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)

	v, err := p.resolveWriteValue(context.Background(), wsKey, typeKey, "owner", "owner", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, types.ValueKindUser, v.Kind)
	assert.Equal(t, "user_jane", v.Wire())
}

func TestResolveWriteValueRelatedField(t *testing.T) {
	p := newTestProvider(newFakeEnv())
	wsKey, typeKey := testScope(t, p)

	v, err := p.resolveWriteValue(context.Background(), wsKey, typeKey, "field_parent", "parent", "123456")
	require.NoError(t, err)
	assert.Equal(t, types.ValueKindRelated, v.Kind)
	assert.Equal(t, int64(123456), v.Wire())
}

func TestResolveWriteValueRoleOwners(t *testing.T) {
	env := newFakeEnv()
	env.fields = append(env.fields, types.FieldDefinition{
		Name: "reviewers", Key: "field_reviewers", Type: types.FieldTypeRoleOwners,
	})
	p := newTestProvider(env)
	wsKey, typeKey := testScope(t, p)

	v, err := p.resolveWriteValue(context.Background(), wsKey, typeKey, "field_reviewers", "reviewers", "Reviewer: Jane Doe")
	require.NoError(t, err)
	require.Equal(t, types.ValueKindRoleOwners, v.Kind)
	assert.Equal(t, []types.RoleOwners{{Role: "role_reviewer", Owners: []string{"user_jane"}}}, v.Roles)

	_, err = p.resolveWriteValue(context.Background(), wsKey, typeKey, "field_reviewers", "reviewers", "just some text")
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParseBoolWord(t *testing.T) {
	b, ok := parseBoolWord("Yes")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = parseBoolWord("2")
	assert.False(t, ok)
}

func TestFirstDelimiterPrecedence(t *testing.T) {
	assert.Equal(t, " / ", firstDelimiter("a / b,c"))
	assert.Equal(t, ",", firstDelimiter("a,b;c"))
	assert.Equal(t, "|", firstDelimiter("a|b"))
	assert.Equal(t, "", firstDelimiter("plain"))
}

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pivotstack/worktrack/pkg/types"
)

func TestLooksLikeUserKey(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "user_7f3a9b", want: true},
		{in: "ou_9d2c1e4f", want: true},
		{in: "usr_x", want: true},
		{in: "u_ab", want: true},
		{in: "7f3a9b2c4d", want: true},
		{in: "Jane Doe", want: false},
		{in: "jane.doe@example.com", want: false},
		{in: "王小明", want: false},
		{in: "abc", want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, looksLikeUserKey(tt.in), "input %q", tt.in)
	}
}

func TestResolveUserKey(t *testing.T) {
	api := &fakeAPI{
		searchUsers: func(_ context.Context, q string) ([]types.User, error) {
			if q == "Jane Doe" || q == "jane.doe@example.com" {
				return []types.User{{Name: "Jane Doe", Email: "jane.doe@example.com", Key: "user_jane"}}, nil
			}
			return nil, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	// Key-shaped identifiers never hit the remote.
	key, err := r.ResolveUserKey(ctx, "user_7f3a9b")
	require.NoError(t, err)
	assert.Equal(t, "user_7f3a9b", key)
	assert.Equal(t, int32(0), api.searchCalls.Load())

	key, err = r.ResolveUserKey(ctx, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "user_jane", key)

	// Email was seeded by the same search result.
	key, err = r.ResolveUserKey(ctx, "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user_jane", key)
	assert.Equal(t, int32(1), api.searchCalls.Load())

	_, err = r.ResolveUserKey(ctx, "Nobody Here")
	assert.True(t, types.IsNotFound(err))

	_, err = r.ResolveUserKey(ctx, "  ")
	assert.ErrorIs(t, err, types.ErrEmptyIdentifier)
}

func TestResolveUserKeyFailedSearchNotCached(t *testing.T) {
	api := &fakeAPI{
		searchUsers: func(context.Context, string) ([]types.User, error) {
			return nil, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	_, err := r.ResolveUserKey(ctx, "Jane Doe")
	require.Error(t, err)
	_, err = r.ResolveUserKey(ctx, "Jane Doe")
	require.Error(t, err)
	assert.Equal(t, int32(2), api.searchCalls.Load())
}

func TestUserName(t *testing.T) {
	api := &fakeAPI{
		queryUsers: func(_ context.Context, keys []string) ([]types.User, error) {
			return []types.User{{Name: "王小明", AltName: "Ming Wang", Key: "user_ming"}}, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	name, err := r.UserName(ctx, "user_ming")
	require.NoError(t, err)
	assert.Equal(t, "王小明", name)

	_, err = r.UserName(ctx, "user_ming")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.queryCalls.Load())
}

func TestBatchUserNames(t *testing.T) {
	api := &fakeAPI{
		queryUsers: func(_ context.Context, keys []string) ([]types.User, error) {
			var out []types.User
			for _, k := range keys {
				switch k {
				case "user_a":
					out = append(out, types.User{Name: "Ada", Key: "user_a"})
				case "user_b":
					out = append(out, types.User{AltName: "Ben", Key: "user_b"})
				}
			}
			return out, nil
		},
	}
	r := newTestResolver(api)
	ctx := context.Background()

	names, err := r.BatchUserNames(ctx, []string{"user_a", "user_b", "user_gone", "user_a", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user_a": "Ada", "user_b": "Ben"}, names)
	assert.Equal(t, int32(1), api.queryCalls.Load())

	// Second batch is fully cache-served.
	names, err = r.BatchUserNames(ctx, []string{"user_a", "user_b"})
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.Equal(t, int32(1), api.queryCalls.Load())
}

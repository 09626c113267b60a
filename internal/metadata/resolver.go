// Package metadata resolves human-readable names (workspaces, item types,
// fields, options, roles, users) into the opaque keys the remote service
// addresses them by, caching each metadata category in TTL-scoped buckets.
//
// A bucket is an immutable snapshot of one category scoped to one key. It is
// either fully populated from its last successful fetch or absent; reloads
// build a fresh snapshot and swap it in whole. Concurrent resolutions of the
// same expired bucket share a single fetch, while distinct buckets load
// independently.
package metadata

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/pivotstack/worktrack/pkg/types"
)

// Bucket TTLs. Workspace membership changes rarely; schema and directory
// data a little more often.
const (
	workspaceTTL = time.Hour
	typeTTL      = 30 * time.Minute
	fieldTTL     = 30 * time.Minute
	userTTL      = 30 * time.Minute
)

// workspaceCacheCap bounds the workspace name cache in long-running
// processes; the structurally-oldest entry is evicted once the cap is hit.
const workspaceCacheCap = 64

// workspaceDirectoryKey is the cache entry holding the whole name→key
// directory. The NUL byte keeps it from colliding with a workspace name.
const workspaceDirectoryKey = "\x00directory"

// API is the slice of the remote surface the resolver consumes.
type API interface {
	ListWorkspaceKeys(ctx context.Context) ([]string, error)
	WorkspaceDetails(ctx context.Context, keys []string) (map[string]types.Workspace, error)
	ListItemTypes(ctx context.Context, workspaceKey string) ([]types.ItemType, error)
	ListFields(ctx context.Context, workspaceKey, typeKey string) ([]types.FieldDefinition, error)
	SearchUsers(ctx context.Context, query string) ([]types.User, error)
	QueryUsers(ctx context.Context, userKeys []string) ([]types.User, error)
}

// bundleKey addresses one (workspace, item type) field bundle.
type bundleKey struct {
	workspace string
	itemType  string
}

// Cache values carry the load error alongside the snapshot so a suppressed
// loader can hand both to every waiter; failed loads are evicted immediately
// after observation so a bucket never stays populated with an error.
type wsValue struct {
	byName map[string]string
	err    error
}

type typeValue struct {
	byName map[string]string
	err    error
}

type bundleValue struct {
	bundle *fieldBundle
	err    error
}

type userValue struct {
	key string
	err error
}

type nameValue struct {
	name string
	err  error
}

// Resolver is the metadata cache manager. Construct it once at process start
// and inject it into callers; it holds no global state.
type Resolver struct {
	api        API
	logger     *slog.Logger
	roleParser RoleKeyParser

	workspaces *ttlcache.Cache[string, wsValue]
	itemTypes  *ttlcache.Cache[string, typeValue]
	bundles    *ttlcache.Cache[bundleKey, bundleValue]
	userKeys   *ttlcache.Cache[string, userValue]
	userNames  *ttlcache.Cache[string, nameValue]

	wsGroup     singleflight.Group
	typeGroup   singleflight.Group
	bundleGroup singleflight.Group
	userGroup   singleflight.Group
	nameGroup   singleflight.Group
}

// Config adjusts optional Resolver behavior.
type Config struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// RoleParser defaults to the current key-suffix convention.
	RoleParser RoleKeyParser
	// BucketTTL overrides every per-category TTL when nonzero.
	BucketTTL time.Duration
}

// NewResolver builds a Resolver over the given remote accessors.
func NewResolver(api API, cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cfg.RoleParser
	if parser == nil {
		parser = SuffixRoleParser{}
	}
	wsTTL, tTTL, fTTL, uTTL := workspaceTTL, typeTTL, fieldTTL, userTTL
	if cfg.BucketTTL > 0 {
		wsTTL, tTTL, fTTL, uTTL = cfg.BucketTTL, cfg.BucketTTL, cfg.BucketTTL, cfg.BucketTTL
	}
	return &Resolver{
		api:        api,
		logger:     logger,
		roleParser: parser,
		workspaces: ttlcache.New[string, wsValue](
			ttlcache.WithTTL[string, wsValue](wsTTL),
			ttlcache.WithCapacity[string, wsValue](workspaceCacheCap),
			ttlcache.WithDisableTouchOnHit[string, wsValue](),
		),
		itemTypes: ttlcache.New[string, typeValue](
			ttlcache.WithTTL[string, typeValue](tTTL),
			ttlcache.WithDisableTouchOnHit[string, typeValue](),
		),
		bundles: ttlcache.New[bundleKey, bundleValue](
			ttlcache.WithTTL[bundleKey, bundleValue](fTTL),
			ttlcache.WithDisableTouchOnHit[bundleKey, bundleValue](),
		),
		userKeys: ttlcache.New[string, userValue](
			ttlcache.WithTTL[string, userValue](uTTL),
			ttlcache.WithDisableTouchOnHit[string, userValue](),
		),
		userNames: ttlcache.New[string, nameValue](
			ttlcache.WithTTL[string, nameValue](uTTL),
			ttlcache.WithDisableTouchOnHit[string, nameValue](),
		),
	}
}

// InvalidateAll clears every bucket. The next resolution of any name
// performs a fresh fetch.
func (r *Resolver) InvalidateAll() {
	r.workspaces.DeleteAll()
	r.itemTypes.DeleteAll()
	r.bundles.DeleteAll()
	r.userKeys.DeleteAll()
	r.userNames.DeleteAll()
	r.logger.Debug("metadata caches cleared")
}

// ---- workspaces ----

// fetchWorkspaces loads the full directory and seeds the workspace cache.
func (r *Resolver) fetchWorkspaces(ctx context.Context) (map[string]string, error) {
	keys, err := r.api.ListWorkspaceKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, types.ErrNoWorkspaces
	}
	details, err := r.api.WorkspaceDetails(ctx, keys)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(details))
	for key, ws := range details {
		if ws.Name == "" {
			continue
		}
		byName[ws.Name] = key
	}
	return byName, nil
}

// ResolveWorkspaceKey turns a workspace name into its opaque key.
func (r *Resolver) ResolveWorkspaceKey(ctx context.Context, name string) (string, error) {
	loader := r.workspaceLoader(ctx, name)
	item := r.workspaces.Get(name, ttlcache.WithLoader[string, wsValue](loader))
	if item == nil {
		return "", &types.NotFoundError{Kind: types.KindWorkspace, Name: name}
	}
	v := item.Value()
	if v.err != nil {
		r.workspaces.Delete(name)
		return "", v.err
	}
	key, ok := v.byName[name]
	if !ok {
		r.workspaces.Delete(name)
		return "", &types.NotFoundError{Kind: types.KindWorkspace, Name: name, Alternatives: sortedKeys(v.byName)}
	}
	return key, nil
}

// workspaceLoader loads the directory once per expired name; every entry of
// the fetched directory is cached so sibling names hit without refetching.
func (r *Resolver) workspaceLoader(ctx context.Context, _ string) ttlcache.Loader[string, wsValue] {
	loader := ttlcache.LoaderFunc[string, wsValue](func(c *ttlcache.Cache[string, wsValue], key string) *ttlcache.Item[string, wsValue] {
		byName, err := r.fetchWorkspaces(ctx)
		if err != nil {
			return c.Set(key, wsValue{err: err}, ttlcache.DefaultTTL)
		}
		for name := range byName {
			if name == key {
				continue
			}
			c.Set(name, wsValue{byName: byName}, ttlcache.DefaultTTL)
		}
		if key != workspaceDirectoryKey {
			c.Set(workspaceDirectoryKey, wsValue{byName: byName}, ttlcache.DefaultTTL)
		}
		r.logger.Debug("workspace bucket loaded", slog.Int("entries", len(byName)))
		return c.Set(key, wsValue{byName: byName}, ttlcache.DefaultTTL)
	})
	return ttlcache.NewSuppressedLoader[string, wsValue](loader, &r.wsGroup)
}

// ListWorkspaces returns the full name→key directory, served from the
// cached bucket while it is fresh.
func (r *Resolver) ListWorkspaces(ctx context.Context) (map[string]string, error) {
	loader := r.workspaceLoader(ctx, workspaceDirectoryKey)
	item := r.workspaces.Get(workspaceDirectoryKey, ttlcache.WithLoader[string, wsValue](loader))
	if item == nil {
		return nil, types.ErrNoWorkspaces
	}
	v := item.Value()
	if v.err != nil {
		r.workspaces.Delete(workspaceDirectoryKey)
		return nil, v.err
	}
	return copyMap(v.byName), nil
}

// ---- item types ----

// ResolveTypeKey turns an item type name into its key within one workspace.
// The not-found error enumerates the type names that do exist.
func (r *Resolver) ResolveTypeKey(ctx context.Context, workspaceKey, typeName string) (string, error) {
	byName, err := r.typeBucket(ctx, workspaceKey)
	if err != nil {
		return "", err
	}
	if key, ok := byName[typeName]; ok {
		return key, nil
	}
	return "", &types.NotFoundError{Kind: types.KindItemType, Name: typeName, Alternatives: sortedKeys(byName)}
}

// ListTypes returns the name→key map of every item type in a workspace.
func (r *Resolver) ListTypes(ctx context.Context, workspaceKey string) (map[string]string, error) {
	byName, err := r.typeBucket(ctx, workspaceKey)
	if err != nil {
		return nil, err
	}
	return copyMap(byName), nil
}

func (r *Resolver) typeBucket(ctx context.Context, workspaceKey string) (map[string]string, error) {
	loader := ttlcache.LoaderFunc[string, typeValue](func(c *ttlcache.Cache[string, typeValue], key string) *ttlcache.Item[string, typeValue] {
		listed, err := r.api.ListItemTypes(ctx, key)
		if err != nil {
			return c.Set(key, typeValue{err: err}, ttlcache.DefaultTTL)
		}
		byName := make(map[string]string, len(listed))
		for _, t := range listed {
			if t.Name != "" && t.Key != "" {
				byName[t.Name] = t.Key
			}
		}
		r.logger.Debug("type bucket loaded",
			slog.String("workspace", types.MaskKey(key)),
			slog.Int("entries", len(byName)))
		return c.Set(key, typeValue{byName: byName}, ttlcache.DefaultTTL)
	})
	item := r.itemTypes.Get(workspaceKey, ttlcache.WithLoader[string, typeValue](
		ttlcache.NewSuppressedLoader[string, typeValue](loader, &r.typeGroup)))
	if item == nil {
		return nil, &types.NotFoundError{Kind: types.KindWorkspace, Name: workspaceKey}
	}
	v := item.Value()
	if v.err != nil {
		r.itemTypes.Delete(workspaceKey)
		return nil, v.err
	}
	return v.byName, nil
}

// ---- helpers ----

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// trimEqual compares two names ignoring leading/trailing whitespace. The
// remote sometimes stores field names with stray trailing newlines.
func trimEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

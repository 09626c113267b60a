// Package items exposes the work-item operations: querying, creation,
// updates with per-field fault tolerance, deletion, and the client-side
// lookups the remote query language cannot express. All name→key resolution
// is delegated to the metadata resolver; this package owns value shaping,
// write orchestration, and result assembly.
package items

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/semaphore"

	"github.com/pivotstack/worktrack/internal/metadata"
	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

// DefaultTypeName is the item type assumed when none is configured. Only
// this default falls back to the first available type when the workspace
// does not define it; an explicitly configured type must exist.
const DefaultTypeName = "Issue"

// writeConcurrency bounds in-flight write calls on the fallback path. The
// remote enforces a low per-token QPS budget.
const writeConcurrency = 2

// Enrichment lookup TTLs. User directory data outlives item names.
const (
	userLookupTTL = 10 * time.Minute
	itemLookupTTL = 5 * time.Minute
)

// ownerFieldCandidates are tried in order when locating the assignee field;
// schemas name it inconsistently.
var ownerFieldCandidates = []string{"owner", "Assignee", "assignee", "Owner"}

// Remote is the item-level surface of the transport client.
type Remote interface {
	CreateItem(ctx context.Context, workspaceKey, typeKey, name string, patches []types.FieldPatch) (int64, error)
	QueryItems(ctx context.Context, workspaceKey, typeKey string, ids []int64) ([]types.Item, error)
	UpdateItem(ctx context.Context, workspaceKey, typeKey string, id int64, patches []types.FieldPatch) error
	DeleteItem(ctx context.Context, workspaceKey, typeKey string, id int64) error
	FilterItems(ctx context.Context, workspaceKey string, typeKeys []string, opts remote.FilterOptions) (*remote.ItemPage, error)
	SearchItems(ctx context.Context, workspaceKey, typeKey string, group types.SearchGroup, pageNum, pageSize int, fields []string) (*remote.ItemPage, error)
}

// Config binds a Provider to one workspace and item type. Exactly one of
// WorkspaceName and WorkspaceKey must be set.
type Config struct {
	WorkspaceName string
	WorkspaceKey  string
	TypeName      string
	Logger        *slog.Logger
}

// Provider executes work-item operations against one workspace/type pair.
type Provider struct {
	api    Remote
	meta   *metadata.Resolver
	logger *slog.Logger

	workspaceName string
	typeName      string

	mu           sync.Mutex
	workspaceKey string
	typeKey      string

	// writeSem gates every fallback-path write call.
	writeSem *semaphore.Weighted
	// retryBase is the first rate-limit backoff delay.
	retryBase time.Duration

	userNames *ttlcache.Cache[string, string]
	itemNames *ttlcache.Cache[int64, string]
}

// NewProvider wires a Provider. The metadata resolver and transport client
// are shared across providers; lookup caches are per-provider.
func NewProvider(api Remote, meta *metadata.Resolver, cfg Config) (*Provider, error) {
	if cfg.WorkspaceName == "" && cfg.WorkspaceKey == "" {
		return nil, fmt.Errorf("provider config: workspace name or key required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	typeName := cfg.TypeName
	if typeName == "" {
		typeName = DefaultTypeName
	}
	return &Provider{
		api:           api,
		meta:          meta,
		logger:        logger,
		workspaceName: cfg.WorkspaceName,
		workspaceKey:  cfg.WorkspaceKey,
		typeName:      typeName,
		writeSem:      semaphore.NewWeighted(writeConcurrency),
		retryBase:     writeRetryBase,
		userNames: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](userLookupTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		itemNames: ttlcache.New[int64, string](
			ttlcache.WithTTL[int64, string](itemLookupTTL),
			ttlcache.WithDisableTouchOnHit[int64, string](),
		),
	}, nil
}

// scope returns the resolved (workspaceKey, typeKey) pair, resolving and
// memoizing on first use. When the configured type name is the package
// default and the workspace does not define it, the first available type is
// used instead; explicitly configured names must exist.
func (p *Provider) scope(ctx context.Context) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workspaceKey == "" {
		key, err := p.meta.ResolveWorkspaceKey(ctx, p.workspaceName)
		if err != nil {
			return "", "", err
		}
		p.workspaceKey = key
	}
	if p.typeKey != "" {
		return p.workspaceKey, p.typeKey, nil
	}
	key, err := p.meta.ResolveTypeKey(ctx, p.workspaceKey, p.typeName)
	if err != nil {
		if p.typeName != DefaultTypeName || !types.IsNotFound(err) {
			return "", "", err
		}
		all, lerr := p.meta.ListTypes(ctx, p.workspaceKey)
		if lerr != nil || len(all) == 0 {
			return "", "", err
		}
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
		key = all[names[0]]
		p.logger.Warn("configured item type missing, falling back to first available",
			slog.String("configured", p.typeName),
			slog.String("using", names[0]))
	}
	p.typeKey = key
	return p.workspaceKey, p.typeKey, nil
}

// CreateIssue creates a work item and returns its ID. Priority cannot be set
// on the create call itself; it is applied by a best-effort follow-up write.
func (p *Provider) CreateIssue(ctx context.Context, name, priority, description, assignee string) (int64, error) {
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return 0, err
	}

	var patches []types.FieldPatch
	if description != "" {
		key, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, "description")
		if err != nil {
			return 0, err
		}
		patches = append(patches, types.FieldPatch{Key: key, Name: "description", Value: types.ScalarValue(description)})
	}
	if assignee != "" {
		userKey, err := p.meta.ResolveUserKey(ctx, assignee)
		if err != nil {
			return 0, err
		}
		patches = append(patches, types.FieldPatch{Key: "owner", Name: "assignee", Value: types.UserValue(userKey)})
	}

	id, err := p.api.CreateItem(ctx, wsKey, typeKey, name, patches)
	if err != nil {
		return 0, err
	}
	p.logger.Info("work item created", slog.Int64("id", id))

	if priority != "" {
		if err := p.setPriority(ctx, wsKey, typeKey, id, priority); err != nil {
			p.logger.Warn("post-create priority update failed",
				slog.Int64("id", id), slog.String("error", err.Error()))
		}
	}
	return id, nil
}

func (p *Provider) setPriority(ctx context.Context, wsKey, typeKey string, id int64, priority string) error {
	fieldKey, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, "priority")
	if err != nil {
		return err
	}
	value, err := p.resolveWriteValue(ctx, wsKey, typeKey, fieldKey, "priority", priority)
	if err != nil {
		return err
	}
	return p.api.UpdateItem(ctx, wsKey, typeKey, id, []types.FieldPatch{
		{Key: fieldKey, Name: "priority", Value: value},
	})
}

// DeleteIssue removes a work item and drops its cached name.
func (p *Provider) DeleteIssue(ctx context.Context, id int64) error {
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return err
	}
	if err := p.api.DeleteItem(ctx, wsKey, typeKey, id); err != nil {
		return err
	}
	p.itemNames.Delete(id)
	p.logger.Info("work item deleted", slog.Int64("id", id))
	return nil
}

// ListAvailableOptions returns the label→value map of a named field.
func (p *Provider) ListAvailableOptions(ctx context.Context, fieldName string) (map[string]string, error) {
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return nil, err
	}
	fieldKey, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, fieldName)
	if err != nil {
		return nil, err
	}
	return p.meta.ListOptions(ctx, wsKey, typeKey, fieldKey)
}

// ClearUserCache drops every cached user-key → display-name mapping.
func (p *Provider) ClearUserCache() {
	p.userNames.DeleteAll()
}

// ClearItemCache drops every cached work-item name.
func (p *Provider) ClearItemCache() {
	p.itemNames.DeleteAll()
}

// ownerFieldKey locates the assignee field, trying candidate names in
// order. Falls back to the conventional key when nothing matches.
func (p *Provider) ownerFieldKey(ctx context.Context, wsKey, typeKey string) string {
	for _, candidate := range ownerFieldCandidates {
		if key, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, candidate); err == nil {
			return key
		}
	}
	return "owner"
}

// isRelatedTo reports whether any field of the item references the given ID.
func isRelatedTo(item *types.Item, relatedTo int64) bool {
	for _, f := range item.Fields {
		switch v := f.Value.(type) {
		case nil:
			continue
		case []any:
			for _, el := range v {
				if numericID(el) == relatedTo {
					return true
				}
			}
		default:
			if numericID(v) == relatedTo {
				return true
			}
		}
	}
	return false
}

// numericID coerces the JSON number shapes an ID may arrive in.
func numericID(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

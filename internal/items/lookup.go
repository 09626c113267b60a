package items

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

// typeBatchSize bounds how many item types are probed concurrently during
// cross-type discovery.
const typeBatchSize = 5

// unknownName marks an ID that was looked up and not found, so repeated
// enrichment passes skip it until the cache entry expires.
const unknownName = "\x00not-found"

// GetIssueDetails fetches one work item. When the configured type does not
// contain the ID, every other type in the workspace is probed concurrently
// in fixed-size batches; the first hit short-circuits the remaining batches.
func (p *Provider) GetIssueDetails(ctx context.Context, id int64) (*types.Item, error) {
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return nil, err
	}

	items, err := p.api.QueryItems(ctx, wsKey, typeKey, []int64{id})
	if err != nil {
		p.logger.Debug("query in configured type failed",
			slog.Int64("id", id), slog.String("error", err.Error()))
	}
	if len(items) > 0 {
		item := items[0]
		if item.TypeKey == "" {
			item.TypeKey = typeKey
		}
		return &item, nil
	}

	p.logger.Info("item not in configured type, probing other types", slog.Int64("id", id))
	item, foundType, err := p.crossTypeQuery(ctx, wsKey, typeKey, id)
	if err != nil {
		return nil, err
	}
	if item.TypeKey == "" {
		item.TypeKey = foundType
	}
	return item, nil
}

// crossTypeQuery probes every type except exceptKey for the ID, batchwise.
func (p *Provider) crossTypeQuery(ctx context.Context, wsKey, exceptKey string, id int64) (*types.Item, string, error) {
	allTypes, err := p.meta.ListTypes(ctx, wsKey)
	if err != nil {
		return nil, "", err
	}
	var typeKeys []string
	for _, key := range allTypes {
		if key != exceptKey {
			typeKeys = append(typeKeys, key)
		}
	}
	sort.Strings(typeKeys)
	if len(typeKeys) == 0 {
		return nil, "", &types.NotFoundError{Kind: types.KindItem, Name: fmt.Sprint(id)}
	}

	for start := 0; start < len(typeKeys); start += typeBatchSize {
		end := start + typeBatchSize
		if end > len(typeKeys) {
			end = len(typeKeys)
		}
		batch := typeKeys[start:end]

		results := make([]*types.Item, len(batch))
		var g errgroup.Group
		for i, tk := range batch {
			i, tk := i, tk
			g.Go(func() error {
				// A failed probe of one type never aborts the batch.
				items, err := p.api.QueryItems(ctx, wsKey, tk, []int64{id})
				if err == nil && len(items) > 0 {
					results[i] = &items[0]
				}
				return nil
			})
		}
		_ = g.Wait()

		for i, item := range results {
			if item != nil {
				p.logger.Info("item discovered in another type",
					slog.Int64("id", id), slog.String("type", types.MaskKey(batch[i])))
				return item, batch[i], nil
			}
		}
	}
	return nil, "", &types.NotFoundError{Kind: types.KindItem, Name: fmt.Sprint(id)}
}

// ReadableField is one field with its display name and a value whose opaque
// keys have been replaced by names where possible.
type ReadableField struct {
	Key   string `json:"field_key"`
	Name  string `json:"field_name"`
	Value any    `json:"value"`
}

// ReadableIssue is a work item enriched for human consumption.
type ReadableIssue struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	TypeKey   string          `json:"work_item_type_key,omitempty"`
	Owner     string          `json:"owner,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	Fields    []ReadableField `json:"fields"`
}

// GetReadableIssueDetails fetches an item and resolves its opaque values —
// user keys, option values, role keys, related item IDs — into display
// names. Enrichment is best-effort: anything that fails to resolve is left
// as-is, never failing the call.
func (p *Provider) GetReadableIssueDetails(ctx context.Context, id int64) (*ReadableIssue, error) {
	item, err := p.GetIssueDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	wsKey, _, err := p.scope(ctx)
	if err != nil {
		return nil, err
	}
	// Field names come from the type the item actually lives in, which may
	// differ from the configured one after cross-type discovery.
	typeKey := item.TypeKey

	userKeys, relatedIDs := collectEnrichmentKeys(item)
	userNames := p.userDisplayNames(ctx, userKeys)
	itemNames := p.itemDisplayNames(ctx, wsKey, typeKey, relatedIDs)

	out := &ReadableIssue{
		ID:        item.ID,
		Name:      item.Name,
		TypeKey:   item.TypeKey,
		Owner:     orKey(userNames, item.Owner),
		CreatedBy: orKey(userNames, item.CreatedBy),
		UpdatedBy: orKey(userNames, item.UpdatedBy),
	}
	for _, f := range item.Fields {
		name := f.Name
		if resolved, err := p.meta.FieldName(ctx, wsKey, typeKey, f.Key); err == nil {
			name = resolved
		}
		if name == "" {
			name = f.Key
		}
		out.Fields = append(out.Fields, ReadableField{
			Key:   f.Key,
			Name:  name,
			Value: p.readableValue(ctx, wsKey, typeKey, f, userNames, itemNames),
		})
	}
	return out, nil
}

// collectEnrichmentKeys gathers the user keys and related item IDs an item
// references, for batch resolution.
func collectEnrichmentKeys(item *types.Item) ([]string, []int64) {
	userSet := map[string]bool{}
	relatedSet := map[int64]bool{}

	for _, rootUser := range []string{item.Owner, item.CreatedBy, item.UpdatedBy} {
		if rootUser != "" {
			userSet[rootUser] = true
		}
	}
	for _, f := range item.Fields {
		if f.Value == nil {
			continue
		}
		switch {
		case types.IsUserField(f.Type) || f.Type == types.FieldTypeRoleOwners || f.Key == "owner":
			switch v := f.Value.(type) {
			case string:
				userSet[v] = true
			case []any:
				for _, el := range v {
					if s, ok := el.(string); ok {
						userSet[s] = true
					}
					if obj, ok := el.(map[string]any); ok {
						for _, owner := range ownerKeysOf(obj) {
							userSet[owner] = true
						}
					}
				}
			}
		case types.IsRelatedField(f.Type):
			switch v := f.Value.(type) {
			case []any:
				for _, el := range v {
					if id := numericID(el); id != 0 {
						relatedSet[id] = true
					} else if s, ok := el.(string); ok {
						if id, ok := digitString(s); ok {
							relatedSet[id] = true
						}
					}
				}
			default:
				if id := numericID(v); id != 0 {
					relatedSet[id] = true
				} else if s, ok := v.(string); ok {
					if id, ok := digitString(s); ok {
						relatedSet[id] = true
					}
				}
			}
		}
	}

	users := make([]string, 0, len(userSet))
	for k := range userSet {
		users = append(users, k)
	}
	related := make([]int64, 0, len(relatedSet))
	for id := range relatedSet {
		related = append(related, id)
	}
	sort.Strings(users)
	sort.Slice(related, func(i, j int) bool { return related[i] < related[j] })
	return users, related
}

// ownerKeysOf extracts user keys from a role-owner wire object.
func ownerKeysOf(obj map[string]any) []string {
	owners, ok := obj["owners"].([]any)
	if !ok {
		return nil
	}
	var keys []string
	for _, o := range owners {
		if s, ok := o.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys
}

// userDisplayNames resolves user keys to names through the provider cache,
// querying the directory once for the misses. Failures degrade to keys.
func (p *Provider) userDisplayNames(ctx context.Context, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		if item := p.userNames.Get(key); item != nil {
			if name := item.Value(); name != unknownName {
				out[key] = name
			}
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out
	}
	resolved, err := p.meta.BatchUserNames(ctx, missing)
	if err != nil {
		p.logger.Warn("user name enrichment failed", slog.String("error", err.Error()))
		return out
	}
	for _, key := range missing {
		if name, ok := resolved[key]; ok {
			out[key] = name
			p.userNames.Set(key, name, ttlcache.DefaultTTL)
		} else {
			p.userNames.Set(key, unknownName, ttlcache.DefaultTTL)
		}
	}
	return out
}

// itemDisplayNames resolves related item IDs to names: cache, then the
// item's own type, then a cross-type sweep. IDs that stay unknown are
// negatively cached so the next enrichment pass skips them.
func (p *Provider) itemDisplayNames(ctx context.Context, wsKey, typeKey string, ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	var missing []int64
	for _, id := range ids {
		if item := p.itemNames.Get(id); item != nil {
			if name := item.Value(); name != unknownName {
				out[id] = name
			}
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	record := func(items []types.Item) {
		for _, it := range items {
			out[it.ID] = it.Name
			p.itemNames.Set(it.ID, it.Name, ttlcache.DefaultTTL)
		}
	}
	if items, err := p.api.QueryItems(ctx, wsKey, typeKey, missing); err == nil {
		record(items)
	} else {
		p.logger.Debug("related item lookup in own type failed", slog.String("error", err.Error()))
	}

	var remaining []int64
	for _, id := range missing {
		if _, ok := out[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) > 0 {
		p.sweepOtherTypes(ctx, wsKey, typeKey, remaining, record)
	}
	for _, id := range missing {
		if _, ok := out[id]; !ok {
			p.itemNames.Set(id, unknownName, ttlcache.DefaultTTL)
		}
	}
	return out
}

// sweepOtherTypes queries the remaining IDs against every other item type,
// batchwise, until all are found or the types run out.
func (p *Provider) sweepOtherTypes(ctx context.Context, wsKey, exceptKey string, ids []int64, record func([]types.Item)) {
	allTypes, err := p.meta.ListTypes(ctx, wsKey)
	if err != nil {
		p.logger.Warn("cannot list types for cross-type enrichment", slog.String("error", err.Error()))
		return
	}
	var typeKeys []string
	for _, key := range allTypes {
		if key != exceptKey {
			typeKeys = append(typeKeys, key)
		}
	}
	sort.Strings(typeKeys)

	var mu sync.Mutex
	found := map[int64]bool{}
	for start := 0; start < len(typeKeys); start += typeBatchSize {
		end := start + typeBatchSize
		if end > len(typeKeys) {
			end = len(typeKeys)
		}
		var pending []int64
		for _, id := range ids {
			if !found[id] {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			return
		}

		var g errgroup.Group
		for _, tk := range typeKeys[start:end] {
			tk := tk
			g.Go(func() error {
				items, err := p.api.QueryItems(ctx, wsKey, tk, pending)
				if err != nil {
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				record(items)
				for _, it := range items {
					found[it.ID] = true
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// readableValue rewrites one field value for display.
func (p *Provider) readableValue(ctx context.Context, wsKey, typeKey string, f types.FieldInstance, userNames map[string]string, itemNames map[int64]string) any {
	if f.Value == nil {
		return nil
	}
	switch {
	case types.IsUserField(f.Type) || f.Key == "owner":
		switch v := f.Value.(type) {
		case string:
			return orKey(userNames, v)
		case []any:
			names := make([]string, 0, len(v))
			for _, el := range v {
				if s, ok := el.(string); ok {
					names = append(names, orKey(userNames, s))
				}
			}
			return names
		}
	case f.Type == types.FieldTypeRoleOwners:
		if list, ok := f.Value.([]any); ok {
			return p.readableRoles(ctx, wsKey, typeKey, list, userNames)
		}
	case types.IsRelatedField(f.Type):
		return readableRelated(f.Value, itemNames)
	}
	return stringifyFieldValue(f.Value)
}

func (p *Provider) readableRoles(ctx context.Context, wsKey, typeKey string, list []any, userNames map[string]string) any {
	var out []map[string]any
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		roleName := ""
		if roleKey, ok := obj["role"].(string); ok {
			roleName = roleKey
			if resolved, err := p.meta.ResolveRoleName(ctx, wsKey, typeKey, roleKey); err == nil {
				roleName = resolved
			}
		}
		var owners []string
		for _, key := range ownerKeysOf(obj) {
			owners = append(owners, orKey(userNames, key))
		}
		out = append(out, map[string]any{"role": roleName, "owners": owners})
	}
	return out
}

func readableRelated(value any, itemNames map[int64]string) any {
	describe := func(id int64) string {
		if name, ok := itemNames[id]; ok && name != "" {
			return fmt.Sprintf("%s (#%d)", name, id)
		}
		return fmt.Sprintf("#%d", id)
	}
	if list, ok := value.([]any); ok {
		out := make([]string, 0, len(list))
		for _, el := range list {
			if id := numericID(el); id != 0 {
				out = append(out, describe(id))
			}
		}
		return out
	}
	if id := numericID(value); id != 0 {
		return describe(id)
	}
	return value
}

func orKey(names map[string]string, key string) string {
	if name, ok := names[key]; ok && name != "" {
		return name
	}
	return key
}

// ResolveRelatedTo turns a related-item reference — an ID, a digit string,
// or an item name — into an item ID. Names are searched concurrently across
// every item type; an exact name match wins, otherwise the first partial
// match is taken.
func (p *Provider) ResolveRelatedTo(ctx context.Context, ref any) (int64, error) {
	if id := numericID(ref); id != 0 {
		return id, nil
	}
	name, ok := ref.(string)
	if !ok {
		return 0, fmt.Errorf("related-to reference must be an ID or a name, got %T", ref)
	}
	if id, ok := digitString(name); ok {
		return id, nil
	}
	if name == "" {
		return 0, types.ErrEmptyIdentifier
	}

	wsKey, _, err := p.scope(ctx)
	if err != nil {
		return 0, err
	}
	allTypes, err := p.meta.ListTypes(ctx, wsKey)
	if err != nil {
		return 0, err
	}
	typeKeys := make([]string, 0, len(allTypes))
	for _, key := range allTypes {
		typeKeys = append(typeKeys, key)
	}
	sort.Strings(typeKeys)

	perType := make([][]types.Item, len(typeKeys))
	var g errgroup.Group
	g.SetLimit(typeBatchSize)
	for i, tk := range typeKeys {
		i, tk := i, tk
		g.Go(func() error {
			raw, err := p.api.FilterItems(ctx, wsKey, []string{tk}, remoteFilterByName(name))
			if err != nil {
				p.logger.Debug("name search failed in one type",
					slog.String("type", types.MaskKey(tk)), slog.String("error", err.Error()))
				return nil
			}
			perType[i] = raw.Normalize(1, 5).Items
			return nil
		})
	}
	_ = g.Wait()

	var firstPartial *types.Item
	for i := range perType {
		for j := range perType[i] {
			item := &perType[i][j]
			if item.Name == name {
				return item.ID, nil
			}
			if firstPartial == nil {
				firstPartial = item
			}
		}
	}
	if firstPartial != nil {
		p.logger.Info("related-to name matched partially",
			slog.String("query", name), slog.String("match", firstPartial.Name))
		return firstPartial.ID, nil
	}
	return 0, &types.NotFoundError{Kind: types.KindItem, Name: name}
}

func remoteFilterByName(name string) remote.FilterOptions {
	return remote.FilterOptions{NameKeyword: name, PageNum: 1, PageSize: 5}
}

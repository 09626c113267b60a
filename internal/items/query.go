package items

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

const defaultPageSize = 50

// TaskFilter narrows a GetTasks call. All fields are optional; an empty
// filter lists everything page by page.
type TaskFilter struct {
	NameKeyword string
	Statuses    []string
	Priorities  []string
	Owner       string
	RelatedTo   int64
	PageNum     int
	PageSize    int
}

// filterFieldNames are fetched with every filtered listing so client-side
// narrowing can inspect them.
var filterFieldNames = []string{"priority", "status", "owner"}

// GetTasks lists work items. Keyword filters ride the efficient filter API
// with client-side narrowing for the conditions it cannot express;
// condition-only filters use the search API; a bare related-to filter falls
// back to a bounded client-side relation scan.
func (p *Provider) GetTasks(ctx context.Context, f TaskFilter) (types.Page, error) {
	if f.PageNum <= 0 {
		f.PageNum = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return types.Page{}, err
	}

	onlyRelated := f.RelatedTo != 0 && f.NameKeyword == "" && f.Owner == "" &&
		len(f.Statuses) == 0 && len(f.Priorities) == 0
	if onlyRelated {
		return p.scanRelated(ctx, wsKey, typeKey, f.RelatedTo)
	}
	if f.NameKeyword != "" {
		return p.filterByKeyword(ctx, wsKey, typeKey, f)
	}
	return p.searchTasks(ctx, wsKey, typeKey, f)
}

// FilterIssues is the condition-only listing: status/priority/owner via the
// search API.
func (p *Provider) FilterIssues(ctx context.Context, statuses, priorities []string, owner string, pageNum, pageSize int) (types.Page, error) {
	return p.GetTasks(ctx, TaskFilter{
		Statuses:   statuses,
		Priorities: priorities,
		Owner:      owner,
		PageNum:    pageNum,
		PageSize:   pageSize,
	})
}

// filterByKeyword uses the filter API, which understands name and status but
// not priority, owner, or relations; those are narrowed client-side.
func (p *Provider) filterByKeyword(ctx context.Context, wsKey, typeKey string, f TaskFilter) (types.Page, error) {
	opts := remote.FilterOptions{
		NameKeyword: f.NameKeyword,
		PageNum:     f.PageNum,
		PageSize:    f.PageSize,
		Fields:      p.filterFieldKeys(ctx, wsKey, typeKey),
	}
	if len(f.Statuses) > 0 {
		if statusKey, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, "status"); err == nil {
			for _, s := range f.Statuses {
				opts.Statuses = append(opts.Statuses, p.resolveFilterValue(ctx, wsKey, typeKey, statusKey, s))
			}
		} else {
			p.logger.Warn("status field unavailable, skipping status filter",
				slog.String("error", err.Error()))
		}
	}

	raw, err := p.api.FilterItems(ctx, wsKey, []string{typeKey}, opts)
	if err != nil {
		return types.Page{}, err
	}
	page := raw.Normalize(f.PageNum, f.PageSize)
	page.Items = p.narrowClientSide(ctx, wsKey, typeKey, page.Items, f)
	return page, nil
}

// searchTasks builds a condition-group query. Fields that do not exist in
// the schema are skipped rather than failing the listing.
func (p *Provider) searchTasks(ctx context.Context, wsKey, typeKey string, f TaskFilter) (types.Page, error) {
	var params []types.SearchParam
	if cond := p.buildCondition(ctx, wsKey, typeKey, "status", f.Statuses); cond != nil {
		params = append(params, *cond)
	}
	if cond := p.buildCondition(ctx, wsKey, typeKey, "priority", f.Priorities); cond != nil {
		params = append(params, *cond)
	}
	if f.Owner != "" {
		if userKey, err := p.meta.ResolveUserKey(ctx, f.Owner); err == nil {
			params = append(params, types.SearchParam{
				FieldKey: p.ownerFieldKey(ctx, wsKey, typeKey),
				Operator: "IN",
				Value:    []string{userKey},
			})
		} else {
			p.logger.Warn("owner filter skipped", slog.String("owner", f.Owner),
				slog.String("error", err.Error()))
		}
	}

	var fields []string
	if len(params) > 0 || f.RelatedTo != 0 {
		fields = p.filterFieldKeys(ctx, wsKey, typeKey)
	}
	group := types.SearchGroup{Conjunction: "AND", Params: params, Groups: []types.SearchGroup{}}

	raw, err := p.api.SearchItems(ctx, wsKey, typeKey, group, f.PageNum, f.PageSize, fields)
	if err != nil {
		return types.Page{}, err
	}
	page := raw.Normalize(f.PageNum, f.PageSize)
	if f.RelatedTo != 0 {
		var kept []types.Item
		for i := range page.Items {
			if isRelatedTo(&page.Items[i], f.RelatedTo) {
				kept = append(kept, page.Items[i])
			}
		}
		page.Items = kept
	}
	return page, nil
}

// buildCondition resolves one field's filter values into a search condition,
// or nil when the field does not exist.
func (p *Provider) buildCondition(ctx context.Context, wsKey, typeKey, fieldName string, values []string) *types.SearchParam {
	if len(values) == 0 {
		return nil
	}
	fieldKey, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, fieldName)
	if err != nil {
		p.logger.Warn("filter field missing, skipping condition",
			slog.String("field", fieldName))
		return nil
	}
	resolved := make([]string, 0, len(values))
	for _, v := range values {
		resolved = append(resolved, p.resolveFilterValue(ctx, wsKey, typeKey, fieldKey, v))
	}
	return &types.SearchParam{FieldKey: fieldKey, Operator: "IN", Value: resolved}
}

// filterFieldKeys resolves the standard narrowing fields, dropping the ones
// this schema lacks.
func (p *Provider) filterFieldKeys(ctx context.Context, wsKey, typeKey string) []string {
	var keys []string
	for _, name := range filterFieldNames {
		if key, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, name); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// narrowClientSide applies the filters the filter API cannot express.
func (p *Provider) narrowClientSide(ctx context.Context, wsKey, typeKey string, items []types.Item, f TaskFilter) []types.Item {
	if len(f.Priorities) == 0 && f.Owner == "" && f.RelatedTo == 0 {
		return items
	}

	var wantPriorities []string
	priorityKey := "priority"
	if len(f.Priorities) > 0 {
		if key, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, "priority"); err == nil {
			priorityKey = key
			for _, v := range f.Priorities {
				wantPriorities = append(wantPriorities, v, p.resolveFilterValue(ctx, wsKey, typeKey, key, v))
			}
		} else {
			wantPriorities = f.Priorities
		}
	}
	var ownerKey string
	if f.Owner != "" {
		if resolved, err := p.meta.ResolveUserKey(ctx, f.Owner); err == nil {
			ownerKey = resolved
		} else {
			p.logger.Debug("owner narrowing skipped", slog.String("owner", f.Owner))
		}
	}

	kept := items[:0]
	for i := range items {
		item := &items[i]
		if len(wantPriorities) > 0 && !matchesAny(extractFieldString(item, priorityKey), wantPriorities) {
			continue
		}
		if ownerKey != "" {
			got := extractFieldString(item, p.ownerFieldKey(ctx, wsKey, typeKey))
			if got == "" {
				got = item.Owner
			}
			if got != ownerKey && !strings.EqualFold(got, f.Owner) {
				continue
			}
		}
		if f.RelatedTo != 0 && !isRelatedTo(item, f.RelatedTo) {
			continue
		}
		kept = append(kept, *item)
	}
	return kept
}

func matchesAny(got string, want []string) bool {
	for _, w := range want {
		if strings.EqualFold(got, w) {
			return true
		}
	}
	return false
}

// extractFieldString reads one field off an item as display text, coping
// with the dynamic shapes field values arrive in: bare scalars, {label,
// value} objects, and lists of user objects.
func extractFieldString(item *types.Item, fieldKey string) string {
	f := item.Field(fieldKey)
	if f == nil {
		return ""
	}
	return stringifyFieldValue(f.Value)
}

func stringifyFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		if label, ok := val["label"].(string); ok && label != "" {
			return label
		}
		if value, ok := val["value"].(string); ok {
			return value
		}
		return ""
	case []any:
		if len(val) == 0 {
			return ""
		}
		if first, ok := val[0].(map[string]any); ok {
			if name, ok := first["name"].(string); ok && name != "" {
				return name
			}
			if name, ok := first["name_cn"].(string); ok {
				return name
			}
			return ""
		}
		return stringifyFieldValue(val[0])
	case float64:
		// JSON numbers; IDs must not render in scientific notation.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}

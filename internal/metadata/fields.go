package metadata

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pivotstack/worktrack/pkg/types"
)

// maxAlternatives caps how many existing names a not-found error carries.
const maxAlternatives = 10

// fieldBundle loads (or returns the cached) field snapshot for one
// (workspace, item type) pair.
func (r *Resolver) fieldBundle(ctx context.Context, workspaceKey, typeKey string) (*fieldBundle, error) {
	loader := ttlcache.LoaderFunc[bundleKey, bundleValue](func(c *ttlcache.Cache[bundleKey, bundleValue], key bundleKey) *ttlcache.Item[bundleKey, bundleValue] {
		fields, err := r.api.ListFields(ctx, key.workspace, key.itemType)
		if err != nil {
			return c.Set(key, bundleValue{err: err}, ttlcache.DefaultTTL)
		}
		b := buildFieldBundle(fields, r.roleParser, r.logger)
		r.logger.Debug("field bundle loaded",
			slog.String("workspace", types.MaskKey(key.workspace)),
			slog.String("type", types.MaskKey(key.itemType)),
			slog.Int("fields", len(b.namesByKey)))
		return c.Set(key, bundleValue{bundle: b}, ttlcache.DefaultTTL)
	})
	key := bundleKey{workspace: workspaceKey, itemType: typeKey}
	item := r.bundles.Get(key, ttlcache.WithLoader[bundleKey, bundleValue](
		ttlcache.NewSuppressedLoader[bundleKey, bundleValue](loader, &r.bundleGroup)))
	if item == nil {
		return nil, &types.NotFoundError{Kind: types.KindField, Name: typeKey}
	}
	v := item.Value()
	if v.err != nil {
		r.bundles.Delete(key)
		return nil, v.err
	}
	return v.bundle, nil
}

// ResolveFieldKey turns a field name or alias into its field key. Inputs
// that already are field keys pass through.
func (r *Resolver) ResolveFieldKey(ctx context.Context, workspaceKey, typeKey, fieldName string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	if key, ok := b.keysByName[fieldName]; ok {
		return key, nil
	}
	for name, key := range b.keysByName {
		if trimEqual(name, fieldName) {
			return key, nil
		}
	}
	// Already a key: pass through unchanged.
	if _, ok := b.namesByKey[fieldName]; ok {
		return fieldName, nil
	}
	if strings.HasPrefix(fieldName, "field_") {
		r.logger.Warn("passing through unrecognized field key",
			slog.String("field", types.MaskKey(fieldName)))
		return fieldName, nil
	}
	return "", &types.NotFoundError{Kind: types.KindField, Name: fieldName, Alternatives: capList(sortedKeys(b.keysByName))}
}

// FieldName reverses a field key to its display name.
func (r *Resolver) FieldName(ctx context.Context, workspaceKey, typeKey, fieldKey string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	if name, ok := b.namesByKey[fieldKey]; ok {
		return name, nil
	}
	return "", &types.NotFoundError{Kind: types.KindField, Name: fieldKey}
}

// FieldType returns the type identifier of a field, given its key.
func (r *Resolver) FieldType(ctx context.Context, workspaceKey, typeKey, fieldKey string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	if ft, ok := b.typesByKey[fieldKey]; ok {
		return ft, nil
	}
	return "", &types.NotFoundError{Kind: types.KindField, Name: fieldKey}
}

// ListFields returns the name→key map of every field of an item type,
// aliases included.
func (r *Resolver) ListFields(ctx context.Context, workspaceKey, typeKey string) (map[string]string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return nil, err
	}
	return copyMap(b.keysByName), nil
}

// ResolveOptionValue turns an option label into its option value for one
// field. Exact label matches win; otherwise the input may already be a
// value, and finally progressively looser text matching is tried. Ambiguous
// loose matches are refused rather than guessed.
func (r *Resolver) ResolveOptionValue(ctx context.Context, workspaceKey, typeKey, fieldKey, label string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	options := b.optionsByField[fieldKey]
	if len(options) == 0 {
		return "", &types.NotFoundError{Kind: types.KindOption, Name: label}
	}
	if value, ok := options[label]; ok {
		return value, nil
	}
	for _, value := range options {
		if value == label {
			return label, nil
		}
	}
	if value, candidates, ok := matchOption(label, options, r.logger); ok {
		return value, nil
	} else if len(candidates) > 1 {
		return "", &types.NotFoundError{Kind: types.KindOption, Name: label, Candidates: candidates}
	}
	return "", &types.NotFoundError{Kind: types.KindOption, Name: label, Alternatives: capList(sortedKeys(options))}
}

// ListOptions returns the flattened label→value map of one field.
func (r *Resolver) ListOptions(ctx context.Context, workspaceKey, typeKey, fieldKey string) (map[string]string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return nil, err
	}
	options, ok := b.optionsByField[fieldKey]
	if !ok {
		return nil, &types.NotFoundError{Kind: types.KindField, Name: fieldKey}
	}
	return copyMap(options), nil
}

// ResolveRoleKey turns a role display name into its role key. Inputs that
// already are role keys pass through.
func (r *Resolver) ResolveRoleKey(ctx context.Context, workspaceKey, typeKey, roleName string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	if key, ok := b.rolesByName[roleName]; ok {
		return key, nil
	}
	if _, ok := b.namesByRole[roleName]; ok {
		return roleName, nil
	}
	lowered := strings.ToLower(strings.TrimSpace(roleName))
	for name, key := range b.rolesByName {
		if strings.ToLower(strings.TrimSpace(name)) == lowered {
			return key, nil
		}
	}
	return "", &types.NotFoundError{Kind: types.KindRole, Name: roleName, Alternatives: capList(sortedKeys(b.rolesByName))}
}

// ResolveRoleName reverses a role key to its display name. Keys that embed
// a known role key as suffix still match.
func (r *Resolver) ResolveRoleName(ctx context.Context, workspaceKey, typeKey, roleKey string) (string, error) {
	b, err := r.fieldBundle(ctx, workspaceKey, typeKey)
	if err != nil {
		return "", err
	}
	if name, ok := b.namesByRole[roleKey]; ok {
		return name, nil
	}
	for key, name := range b.namesByRole {
		if strings.HasSuffix(roleKey, key) {
			return name, nil
		}
	}
	return "", &types.NotFoundError{Kind: types.KindRole, Name: roleKey}
}

func capList(names []string) []string {
	if len(names) > maxAlternatives {
		return names[:maxAlternatives]
	}
	return names
}

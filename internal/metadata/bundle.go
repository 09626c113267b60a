package metadata

import (
	"log/slog"
	"strings"

	"github.com/pivotstack/worktrack/pkg/types"
)

// maxOptionDepth caps recursion into nested option trees.
const maxOptionDepth = 20

// operatorRoleField is the field whose options encode the workflow roles of
// an item type; its option values carry role keys.
const operatorRoleField = "current_status_operator_role"

// RoleKeyParser extracts a role key from an operator-role option value. The
// encoding is a service-side convention that has changed before, so it stays
// behind this seam.
type RoleKeyParser interface {
	ParseRoleKey(optionValue string) string
}

// SuffixRoleParser implements the current convention: option values end in
// "..._role_<suffix>" or are bare role keys already.
type SuffixRoleParser struct{}

func (SuffixRoleParser) ParseRoleKey(optionValue string) string {
	if optionValue == "" {
		return ""
	}
	if idx := strings.LastIndex(optionValue, "_role_"); idx >= 0 {
		return "role_" + optionValue[idx+len("_role_"):]
	}
	if strings.HasPrefix(optionValue, "role_") {
		return optionValue
	}
	parts := strings.Split(optionValue, "_")
	suffix := parts[len(parts)-1]
	if suffix == "" {
		return ""
	}
	return "role_" + suffix
}

// fieldBundle is the immutable field-schema snapshot for one
// (workspace, item type) pair. All five projections are built from a single
// fetch and swapped in together.
type fieldBundle struct {
	// keysByName maps field names and aliases to field keys.
	keysByName map[string]string
	// namesByKey maps field keys back to display names.
	namesByKey map[string]string
	// typesByKey maps field keys to field type identifiers.
	typesByKey map[string]string
	// optionsByField maps field keys to their flattened label→value maps.
	optionsByField map[string]map[string]string
	// rolesByName maps role display names to role keys.
	rolesByName map[string]string
	// namesByRole is the reverse of rolesByName.
	namesByRole map[string]string
}

// buildFieldBundle projects a field listing into the bundle's five maps.
// Duplicate names and labels resolve last-write-wins with a warning.
func buildFieldBundle(fields []types.FieldDefinition, parser RoleKeyParser, logger *slog.Logger) *fieldBundle {
	b := &fieldBundle{
		keysByName:     make(map[string]string, 2*len(fields)),
		namesByKey:     make(map[string]string, len(fields)),
		typesByKey:     make(map[string]string, len(fields)),
		optionsByField: make(map[string]map[string]string),
		rolesByName:    make(map[string]string),
		namesByRole:    make(map[string]string),
	}
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		if f.Name != "" {
			if prev, dup := b.keysByName[f.Name]; dup && prev != f.Key {
				logger.Warn("duplicate field name, keeping later definition",
					slog.String("name", f.Name))
			}
			b.keysByName[f.Name] = f.Key
			b.namesByKey[f.Key] = f.Name
		}
		if f.Alias != "" && f.Alias != f.Name {
			b.keysByName[f.Alias] = f.Key
		}
		if f.Type != "" {
			b.typesByKey[f.Key] = f.Type
		}
		if len(f.Options) > 0 {
			flat := make(map[string]string, len(f.Options))
			flattenOptions(f.Options, flat, 0, f.Key, logger)
			b.optionsByField[f.Key] = flat
		}
		if f.Key == operatorRoleField {
			b.indexRoles(f.Options, parser, logger)
		}
	}
	return b
}

// flattenOptions collapses a possibly nested option tree into a flat
// label→value map. Nested children are siblings of their parents after
// flattening; label collisions keep the later entry.
func flattenOptions(opts []types.Option, into map[string]string, depth int, fieldKey string, logger *slog.Logger) {
	if depth > maxOptionDepth {
		logger.Warn("option tree too deep, truncating",
			slog.String("field", types.MaskKey(fieldKey)), slog.Int("depth", depth))
		return
	}
	for _, o := range opts {
		if o.Label != "" && o.Value != "" {
			if prev, dup := into[o.Label]; dup && prev != o.Value {
				logger.Warn("duplicate option label, keeping later value",
					slog.String("field", types.MaskKey(fieldKey)),
					slog.String("label", o.Label))
			}
			into[o.Label] = o.Value
		}
		if len(o.Children) > 0 {
			flattenOptions(o.Children, into, depth+1, fieldKey, logger)
		}
	}
}

// indexRoles derives the role name→key map from operator-role options.
func (b *fieldBundle) indexRoles(opts []types.Option, parser RoleKeyParser, logger *slog.Logger) {
	flat := make(map[string]string, len(opts))
	flattenOptions(opts, flat, 0, operatorRoleField, logger)
	for label, value := range flat {
		roleKey := parser.ParseRoleKey(value)
		if roleKey == "" {
			logger.Warn("skipping role option with unparseable value",
				slog.String("label", label))
			continue
		}
		b.rolesByName[label] = roleKey
		b.namesByRole[roleKey] = label
	}
}

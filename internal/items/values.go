package items

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pivotstack/worktrack/pkg/types"
)

// delimiters that may join several option labels into one input string.
// " / " is checked first because plain "/" occurs inside labels.
var valueDelimiters = []string{" / ", ",", ";", "|"}

// resolveWriteValue shapes one caller-supplied value into the form the write
// API expects for the field's type. Selects become {label, value} pairs,
// multi-selects lists of pairs (empty input clears them), user fields opaque
// keys, related fields item IDs. Unresolvable input falls back to the raw
// value except for bool and multi-select fields, which are validated
// strictly.
func (p *Provider) resolveWriteValue(ctx context.Context, wsKey, typeKey, fieldKey, fieldName string, raw any) (types.FieldValue, error) {
	fieldType, err := p.meta.FieldType(ctx, wsKey, typeKey, fieldKey)
	if err != nil {
		fieldType = ""
	}

	if fieldType == types.FieldTypeMultiSelect && isBlank(raw) {
		p.logger.Debug("clearing multi-select field", slog.String("field", fieldName))
		return types.ClearValue(), nil
	}

	switch v := raw.(type) {
	case []string:
		anyList := make([]any, len(v))
		for i, s := range v {
			anyList[i] = s
		}
		return p.resolveWriteList(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, anyList)
	case []any:
		return p.resolveWriteList(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, v)
	case string:
		return p.resolveWriteString(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, strings.TrimSpace(v))
	default:
		return p.resolveWriteScalar(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, raw)
	}
}

func (p *Provider) resolveWriteList(ctx context.Context, wsKey, typeKey, fieldKey, fieldName, fieldType string, list []any) (types.FieldValue, error) {
	switch {
	case types.IsUserField(fieldType):
		keys := make([]string, 0, len(list))
		for _, el := range list {
			userKey, err := p.meta.ResolveUserKey(ctx, fmt.Sprint(el))
			if err != nil {
				return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: err.Error()}
			}
			keys = append(keys, userKey)
		}
		return types.UsersValue(keys), nil
	case types.IsRelatedField(fieldType):
		return p.resolveRelatedList(ctx, fieldName, list)
	default:
		refs := make([]types.OptionRef, 0, len(list))
		for _, el := range list {
			label := strings.TrimSpace(fmt.Sprint(el))
			value, err := p.meta.ResolveOptionValue(ctx, wsKey, typeKey, fieldKey, label)
			if err != nil {
				if fieldType == types.FieldTypeMultiSelect {
					return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: fmt.Sprintf("%q is not an available option", label)}
				}
				return types.FieldValue{}, err
			}
			refs = append(refs, types.OptionRef{Label: label, Value: value})
		}
		return types.OptionsValue(refs), nil
	}
}

func (p *Provider) resolveWriteString(ctx context.Context, wsKey, typeKey, fieldKey, fieldName, fieldType, v string) (types.FieldValue, error) {
	// A delimited string may still be one label ("Ready, set, go"): the
	// whole string is tried as a single option before splitting. Only
	// option-bearing fields split at all; free text keeps its commas.
	optionField := fieldType == types.FieldTypeSelect || fieldType == types.FieldTypeMultiSelect
	if delim := firstDelimiter(v); delim != "" && optionField {
		if _, err := p.meta.ResolveOptionValue(ctx, wsKey, typeKey, fieldKey, v); err != nil {
			parts := splitTrim(v, delim)
			if len(parts) > 1 {
				p.logger.Debug("splitting multi-value input",
					slog.String("field", fieldName), slog.Int("parts", len(parts)))
				anyParts := make([]any, len(parts))
				for i, s := range parts {
					anyParts[i] = s
				}
				return p.resolveWriteList(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, anyParts)
			}
		}
	}
	return p.resolveWriteScalar(ctx, wsKey, typeKey, fieldKey, fieldName, fieldType, v)
}

func (p *Provider) resolveWriteScalar(ctx context.Context, wsKey, typeKey, fieldKey, fieldName, fieldType string, raw any) (types.FieldValue, error) {
	label := strings.TrimSpace(fmt.Sprint(raw))

	if value, err := p.meta.ResolveOptionValue(ctx, wsKey, typeKey, fieldKey, label); err == nil {
		ref := types.OptionRef{Label: label, Value: value}
		if fieldType == types.FieldTypeMultiSelect {
			return types.OptionsValue([]types.OptionRef{ref}), nil
		}
		return types.OptionValue(ref.Label, ref.Value), nil
	}

	switch {
	case fieldType == types.FieldTypeBool:
		if b, ok := raw.(bool); ok {
			return types.ScalarValue(b), nil
		}
		if b, ok := parseBoolWord(label); ok {
			return types.ScalarValue(b), nil
		}
		return types.FieldValue{}, &types.ValidationError{
			Field:  fieldName,
			Reason: fmt.Sprintf("%q is not a boolean; expected true/yes/on/1 or false/no/off/0", label),
		}
	case fieldType == types.FieldTypeMultiSelect:
		return types.FieldValue{}, &types.ValidationError{
			Field:  fieldName,
			Reason: fmt.Sprintf("%q is not an available option", label),
		}
	case types.IsUserField(fieldType):
		userKey, err := p.meta.ResolveUserKey(ctx, label)
		if err != nil {
			return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: err.Error()}
		}
		if fieldType == types.FieldTypeMultiUser {
			return types.UsersValue([]string{userKey}), nil
		}
		return types.UserValue(userKey), nil
	case types.IsRelatedField(fieldType):
		return p.resolveRelatedList(ctx, fieldName, []any{raw})
	case fieldType == types.FieldTypeRoleOwners:
		return p.resolveRoleOwners(ctx, wsKey, typeKey, fieldName, label)
	}

	// Unlabeled boolean words still coerce on untyped fields; everything
	// else passes through as-is.
	if b, ok := parseBoolWord(label); ok && fieldType == "" {
		return types.ScalarValue(b), nil
	}
	return types.ScalarValue(raw), nil
}

// resolveRelatedList turns IDs, digit strings, or item names into related
// item IDs.
func (p *Provider) resolveRelatedList(ctx context.Context, fieldName string, list []any) (types.FieldValue, error) {
	ids := make([]int64, 0, len(list))
	for _, el := range list {
		id, err := p.ResolveRelatedTo(ctx, el)
		if err != nil {
			return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: err.Error()}
		}
		ids = append(ids, id)
	}
	return types.RelatedValue(ids), nil
}

// resolveRoleOwners parses "Role: user1, user2" into a role-owner
// assignment, resolving both the role and every user.
func (p *Provider) resolveRoleOwners(ctx context.Context, wsKey, typeKey, fieldName, raw string) (types.FieldValue, error) {
	roleName, owners, ok := strings.Cut(raw, ":")
	if !ok {
		return types.FieldValue{}, &types.ValidationError{
			Field:  fieldName,
			Reason: `expected "role: user[, user...]"`,
		}
	}
	roleKey, err := p.meta.ResolveRoleKey(ctx, wsKey, typeKey, strings.TrimSpace(roleName))
	if err != nil {
		return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: err.Error()}
	}
	var userKeys []string
	for _, owner := range splitTrim(owners, ",") {
		userKey, err := p.meta.ResolveUserKey(ctx, owner)
		if err != nil {
			return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: err.Error()}
		}
		userKeys = append(userKeys, userKey)
	}
	if len(userKeys) == 0 {
		return types.FieldValue{}, &types.ValidationError{Field: fieldName, Reason: "no owners given"}
	}
	return types.RoleOwnersValue([]types.RoleOwners{{Role: roleKey, Owners: userKeys}}), nil
}

// resolveFilterValue shapes a value for the search/filter APIs, which take
// bare option values rather than {label, value} pairs. Non-option input
// passes through.
func (p *Provider) resolveFilterValue(ctx context.Context, wsKey, typeKey, fieldKey, raw string) string {
	value, err := p.meta.ResolveOptionValue(ctx, wsKey, typeKey, fieldKey, raw)
	if err != nil {
		p.logger.Debug("filter value passed through unresolved",
			slog.String("field", types.MaskKey(fieldKey)), slog.String("value", raw))
		return raw
	}
	return value
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func firstDelimiter(s string) string {
	for _, d := range valueDelimiters {
		if strings.Contains(s, d) {
			return d
		}
	}
	return ""
}

func splitTrim(s, delim string) []string {
	var out []string
	for _, part := range strings.Split(s, delim) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// digitString parses a decimal ID string.
func digitString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

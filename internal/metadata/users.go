package metadata

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pivotstack/worktrack/pkg/types"
)

// ResolveUserKey turns a user name or email into the user's opaque key.
// Inputs that already look like user keys pass through without a fetch.
func (r *Resolver) ResolveUserKey(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", types.ErrEmptyIdentifier
	}
	if looksLikeUserKey(identifier) {
		return identifier, nil
	}
	loader := ttlcache.LoaderFunc[string, userValue](func(c *ttlcache.Cache[string, userValue], key string) *ttlcache.Item[string, userValue] {
		users, err := r.api.SearchUsers(ctx, key)
		if err != nil {
			return c.Set(key, userValue{err: err}, ttlcache.DefaultTTL)
		}
		// Cache every identifier of every hit; sibling lookups by email
		// or alternate name then resolve without a fetch.
		var match string
		for _, u := range users {
			if u.Key == "" {
				continue
			}
			for _, id := range []string{u.Name, u.AltName, u.Email} {
				if id == "" {
					continue
				}
				if id == key {
					match = u.Key
					continue
				}
				c.Set(id, userValue{key: u.Key}, ttlcache.DefaultTTL)
			}
			if match == "" {
				match = u.Key
			}
		}
		if match == "" {
			err := &types.NotFoundError{Kind: types.KindUser, Name: key}
			return c.Set(key, userValue{err: err}, ttlcache.DefaultTTL)
		}
		return c.Set(key, userValue{key: match}, ttlcache.DefaultTTL)
	})
	item := r.userKeys.Get(identifier, ttlcache.WithLoader[string, userValue](
		ttlcache.NewSuppressedLoader[string, userValue](loader, &r.userGroup)))
	if item == nil {
		return "", &types.NotFoundError{Kind: types.KindUser, Name: identifier}
	}
	v := item.Value()
	if v.err != nil {
		r.userKeys.Delete(identifier)
		return "", v.err
	}
	return v.key, nil
}

// UserName reverses a user key to a display name.
func (r *Resolver) UserName(ctx context.Context, userKey string) (string, error) {
	loader := ttlcache.LoaderFunc[string, nameValue](func(c *ttlcache.Cache[string, nameValue], key string) *ttlcache.Item[string, nameValue] {
		users, err := r.api.QueryUsers(ctx, []string{key})
		if err != nil {
			return c.Set(key, nameValue{err: err}, ttlcache.DefaultTTL)
		}
		for _, u := range users {
			if u.Key == key {
				return c.Set(key, nameValue{name: u.DisplayName()}, ttlcache.DefaultTTL)
			}
		}
		err = &types.NotFoundError{Kind: types.KindUser, Name: types.MaskKey(key)}
		return c.Set(key, nameValue{err: err}, ttlcache.DefaultTTL)
	})
	item := r.userNames.Get(userKey, ttlcache.WithLoader[string, nameValue](
		ttlcache.NewSuppressedLoader[string, nameValue](loader, &r.nameGroup)))
	if item == nil {
		return "", &types.NotFoundError{Kind: types.KindUser, Name: types.MaskKey(userKey)}
	}
	v := item.Value()
	if v.err != nil {
		r.userNames.Delete(userKey)
		return "", v.err
	}
	return v.name, nil
}

// BatchUserNames resolves many user keys to display names in one query,
// serving what it can from cache first. Keys the directory does not know
// stay absent from the result; the caller decides how to render them.
func (r *Resolver) BatchUserNames(ctx context.Context, userKeys []string) (map[string]string, error) {
	out := make(map[string]string, len(userKeys))
	var missing []string
	seen := make(map[string]bool, len(userKeys))
	for _, key := range userKeys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if item := r.userNames.Get(key); item != nil && item.Value().err == nil {
			out[key] = item.Value().name
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}
	users, err := r.api.QueryUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Key == "" {
			continue
		}
		name := u.DisplayName()
		out[u.Key] = name
		r.userNames.Set(u.Key, nameValue{name: name}, ttlcache.DefaultTTL)
	}
	if len(out) < len(seen) {
		r.logger.Debug("some user keys did not resolve",
			slog.Int("requested", len(seen)), slog.Int("resolved", len(out)))
	}
	return out, nil
}

// looksLikeUserKey reports whether an identifier is plausibly already an
// opaque user key rather than a display name or email. Known key prefixes
// decide immediately; otherwise the string must be a medium-length
// single-token ASCII identifier.
func looksLikeUserKey(s string) bool {
	for _, prefix := range []string{"user_", "ou_", "usr_", "u_"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	if len(s) < 5 || len(s) > 100 {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			return false
		case unicode.Is(unicode.Han, r):
			return false
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	// Emails carry '@'; plain names rarely survive the charset check, but
	// a bare ASCII word of this length is treated as a key.
	return true
}

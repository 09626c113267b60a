package metadata

import (
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// matchOption attempts progressively looser textual matching of target
// against option labels, in a fixed order: whitespace-insensitive, then
// symbol-normalized, then letters-and-digits-only, then unit-suffix
// completion, then unique-substring containment. The first strategy that
// produces exactly one label wins. A substring match with several surviving
// labels is ambiguous: matchOption reports the candidates and no value.
func matchOption(target string, options map[string]string, logger *slog.Logger) (string, []string, bool) {
	if target == "" || len(options) == 0 {
		return "", nil, false
	}

	type entry struct {
		label    string
		value    string
		loose    string
		symbolic string
		extreme  string
	}
	entries := make([]entry, 0, len(options))
	for label, value := range options {
		entries = append(entries, entry{
			label:    label,
			value:    value,
			loose:    looseNormalize(label),
			symbolic: symbolNormalize(label),
			extreme:  extremeNormalize(label),
		})
	}

	hit := func(strategy, label string) {
		logger.Info("option matched loosely",
			slog.String("input", target),
			slog.String("label", label),
			slog.String("strategy", strategy))
	}

	tLoose := looseNormalize(target)
	for _, e := range entries {
		if e.loose == tLoose {
			hit("whitespace", e.label)
			return e.value, nil, true
		}
	}

	tSymbolic := symbolNormalize(target)
	for _, e := range entries {
		if e.symbolic == tSymbolic {
			hit("symbol", e.label)
			return e.value, nil, true
		}
	}

	tExtreme := extremeNormalize(target)
	if tExtreme != "" {
		for _, e := range entries {
			if e.extreme == tExtreme {
				hit("alnum", e.label)
				return e.value, nil, true
			}
		}
	}

	// "512g" means "512gb" in capacity labels; complete the unit and retry.
	if completed, ok := completeUnit(tLoose); ok {
		for _, e := range entries {
			if e.loose == completed {
				hit("unit", e.label)
				return e.value, nil, true
			}
		}
	}

	// Containment either way, but only when exactly one label survives.
	var hits []entry
	for _, e := range entries {
		if e.loose == "" {
			continue
		}
		if strings.Contains(e.loose, tLoose) || strings.Contains(tLoose, e.loose) {
			hits = append(hits, e)
		}
	}
	switch len(hits) {
	case 0:
		return "", nil, false
	case 1:
		hit("containment", hits[0].label)
		return hits[0].value, nil, true
	default:
		candidates := make([]string, len(hits))
		for i, e := range hits {
			candidates[i] = e.label
		}
		sort.Strings(candidates)
		logger.Warn("option match ambiguous",
			slog.String("input", target),
			slog.Int("candidates", len(candidates)))
		return "", candidates, false
	}
}

// looseNormalize lowercases and strips plain spaces.
func looseNormalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// symbolReplacer maps full-width punctuation to ASCII and drops degree
// markers, on top of loose normalization.
var symbolReplacer = strings.NewReplacer(
	"（", "(", "）", ")",
	"，", ",", "；", ";", "：", ":",
	"°", "", "deg", "",
)

// symbolNormalize lowercases, strips every unicode space, and canonicalizes
// punctuation that has full-width variants.
func symbolNormalize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return symbolReplacer.Replace(sb.String())
}

// extremeNormalize keeps only letters, digits, and underscores.
func extremeNormalize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// completeUnit appends "b" to inputs ending in a bare size-unit letter.
func completeUnit(loose string) (string, bool) {
	if loose == "" {
		return "", false
	}
	last := loose[len(loose)-1]
	if strings.ContainsRune("gmktp", rune(last)) {
		return loose + "b", true
	}
	return "", false
}

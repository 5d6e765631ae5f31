package uri

import (
	"strings"

	"github.com/pkg/errors"
)

// SplitTarget splits an origin-form request target into its path and raw query.
// A fragment, which a client must not send, is dropped.
func SplitTarget(target string) (path, rawQuery string) {
	if idx := strings.IndexByte(target, '#'); idx >= 0 {
		target = target[:idx]
	}

	path, rawQuery, _ = strings.Cut(target, "?")
	return path, rawQuery
}

// ParseQuery parses an urlencoded query into a map.
// Keys and values are decoded with '+' as space and trimmed.
// Pairs with an empty key are skipped and the last value of a repeated key wins.
func ParseQuery(rawQuery string) (map[string]string, error) {
	query := make(map[string]string)
	if rawQuery == "" {
		return query, nil
	}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := Unescape(rawKey, true)
		if err != nil {
			return nil, errors.Wrap(err, "decoding query key")
		}
		value, err := Unescape(rawValue, true)
		if err != nil {
			return nil, errors.Wrap(err, "decoding query value")
		}

		if key = strings.TrimSpace(key); key == "" {
			continue
		}
		query[key] = strings.TrimSpace(value)
	}

	return query, nil
}

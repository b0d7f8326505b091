package config

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var sizeSuffixes = map[byte]int64{
	'K': 1024,
	'M': 1024 * 1024,
	'G': 1024 * 1024 * 1024,
	'T': 1024 * 1024 * 1024 * 1024,
}

// ParseSize parses a pgbackrest size option: a decimal integer with an
// optional K/M/G/T suffix (base 1024), per spec.md §6's size type.
func ParseSize(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.NotValidf("empty size value")
	}

	last := strings.ToUpper(v[len(v)-1:])[0]
	mult, hasSuffix := sizeSuffixes[last]
	digits := v
	if hasSuffix {
		digits = v[:len(v)-1]
	} else {
		mult = 1
	}

	n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "size value %q", v)
	}
	return n * mult, nil
}

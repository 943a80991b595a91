package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Size multipliers, SI and IEC.
const (
	kilobyte = 1000
	megabyte = 1000 * kilobyte
	gigabyte = 1000 * megabyte

	kibibyte = 1024
	mebibyte = 1024 * kibibyte
	gibibyte = 1024 * mebibyte
)

// parseSize converts a human-readable size such as "8MiB" or "16MB" to bytes.
// A bare number is raw bytes; empty is 0.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	upper := strings.ToUpper(s)
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GIB", gibibyte},
		{"MIB", mebibyte},
		{"KIB", kibibyte},
		{"GB", gigabyte},
		{"MB", megabyte},
		{"KB", kilobyte},
		{"B", 1},
	}

	multiplier := int64(1)
	num := s
	for _, sf := range suffixes {
		if strings.HasSuffix(upper, sf.suffix) {
			num = strings.TrimSpace(s[:len(s)-len(sf.suffix)])
			multiplier = sf.multiplier
			break
		}
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must not be negative", s)
	}
	return n * multiplier, nil
}

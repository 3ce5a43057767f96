package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidInterval is returned when the probe interval cannot be parsed.
var ErrInvalidInterval = errors.New("invalid interval")

// IntervalDuration returns the parsed probe interval.
func (p *ProbeConfig) IntervalDuration() (time.Duration, error) {
	return ParseInterval(p.Interval)
}

// ParseInterval parses a probe interval. Accepted forms are a Go duration
// with a unit ("90s", "1m") or a product of positive integers interpreted as
// milliseconds ("60000", "60*1000"). The result must be positive.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInterval)
	}

	if strings.IndexFunc(s, isUnitRune) >= 0 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidInterval, s, err)
		}

		if d <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, s)
		}

		return d, nil
	}

	ms := int64(1)

	for _, factor := range strings.Split(s, "*") {
		factor = strings.TrimSpace(factor)

		n, err := strconv.ParseInt(factor, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: bad factor %q", ErrInvalidInterval, s, factor)
		}

		if n <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, s)
		}

		if ms > math.MaxInt64/int64(time.Millisecond)/n {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidInterval, s)
		}

		ms *= n
	}

	return time.Duration(ms) * time.Millisecond, nil
}

func isUnitRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r == 'µ'
}

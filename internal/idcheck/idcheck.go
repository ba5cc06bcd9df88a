// Package idcheck implements the report/trigger ID canonicalization
// rule of spec §6: IDs are restricted to [A-Za-z0-9_], optionally
// containing at most one '/' separator, with per-segment and total
// length caps.
package idcheck

import (
	"strings"

	"github.com/thisdougb/telemetryd/internal/errs"
)

// Limits carries the two configured length caps of §6, sourced from
// TELEMETRYD_ID_MAX_SEGMENT_LEN and TELEMETRYD_ID_MAX_TOTAL_LEN.
type Limits struct {
	MaxSegmentLen int
	MaxTotalLen   int
}

// Validate reports an invalid_argument error if id is empty, carries a
// character outside [A-Za-z0-9_/], contains more than one '/'
// separator, or exceeds the per-segment or total length caps. A
// non-positive limit is treated as unbounded, so a zero-value Limits
// only enforces the character set and separator count.
func Validate(id string, limits Limits, op string) error {
	if id == "" {
		return errs.Newf(errs.InvalidArgument, op, "id must not be empty")
	}
	if limits.MaxTotalLen > 0 && len(id) > limits.MaxTotalLen {
		return errs.Newf(errs.InvalidArgument, op, "id %q exceeds max total length %d", id, limits.MaxTotalLen)
	}

	segments := strings.Split(id, "/")
	if len(segments) > 2 {
		return errs.Newf(errs.InvalidArgument, op, "id %q has more than one '/' separator", id)
	}

	for _, seg := range segments {
		if seg == "" {
			return errs.Newf(errs.InvalidArgument, op, "id %q has an empty segment", id)
		}
		if limits.MaxSegmentLen > 0 && len(seg) > limits.MaxSegmentLen {
			return errs.Newf(errs.InvalidArgument, op, "id %q has a segment exceeding max length %d", id, limits.MaxSegmentLen)
		}
		for _, r := range seg {
			if !isIDRune(r) {
				return errs.Newf(errs.InvalidArgument, op, "id %q contains invalid character %q", id, r)
			}
		}
	}
	return nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}

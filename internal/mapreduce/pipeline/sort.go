package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// sortKey is one comma-separated clause of a sort_by expression:
// "path [ASC|DESC] [NULLS FIRST|NULLS LAST]".
type sortKey struct {
	path       string
	descending bool
	nullsFirst bool
}

// parseSortKeys parses a sort_by string into an ordered list of keys.
// Default direction is ASC; default null placement is NULLS LAST.
func parseSortKeys(expr string) ([]sortKey, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var keys []sortKey
	for _, clause := range strings.Split(expr, ",") {
		fields := strings.Fields(strings.TrimSpace(clause))
		if len(fields) == 0 {
			continue
		}
		key := sortKey{path: fields[0], nullsFirst: false}
		rest := fields[1:]

		for i := 0; i < len(rest); i++ {
			switch strings.ToUpper(rest[i]) {
			case "ASC":
				key.descending = false
			case "DESC":
				key.descending = true
			case "NULLS":
				if i+1 >= len(rest) {
					return nil, fmt.Errorf("%w: dangling NULLS in sort clause %q", mrerrors.ErrConfiguration, clause)
				}
				switch strings.ToUpper(rest[i+1]) {
				case "FIRST":
					key.nullsFirst = true
				case "LAST":
					key.nullsFirst = false
				default:
					return nil, fmt.Errorf("%w: expected FIRST|LAST after NULLS in sort clause %q", mrerrors.ErrConfiguration, clause)
				}
				i++
			default:
				return nil, fmt.Errorf("%w: unrecognized token %q in sort clause %q", mrerrors.ErrConfiguration, rest[i], clause)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// stableSortBy sorts items in place by keys using a stable sort, so
// ties preserve their pre-sort relative order (spec §4.5 invariant 3).
func stableSortBy(items []any, keys []sortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			cmp := compareForSort(items[i], items[j], k)
			if cmp != 0 {
				if k.descending {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return false
	})
}

// compareForSort returns -1/0/1 comparing the values a and b hold at
// key.path, treating an absent/nil value as null and placing it
// according to key.nullsFirst.
func compareForSort(a, b any, key sortKey) int {
	av, aok := lookupFieldPath(a, key.path)
	bv, bok := lookupFieldPath(b, key.path)
	aNull := !aok || av == nil
	bNull := !bok || bv == nil

	if aNull && bNull {
		return 0
	}
	if aNull {
		if key.nullsFirst {
			return -1
		}
		return 1
	}
	if bNull {
		if key.nullsFirst {
			return 1
		}
		return -1
	}

	if af, ok := av.(float64); ok {
		if bf, ok := bv.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as := fmt.Sprintf("%v", av)
	bs := fmt.Sprintf("%v", bv)
	return strings.Compare(as, bs)
}

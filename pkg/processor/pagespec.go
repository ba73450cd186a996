package processor

import (
	"sort"
	"strconv"
	"strings"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
)

// ParsePageSpec parses the split page-specification grammar:
//
//	spec := part ("," part)*
//	part := int | int "-" int
//
// Whitespace around tokens is allowed. The result is a sorted set of unique,
// 1-based page numbers. pageCount bounds range checking; pass 0 to skip it
// (used by callers that validate bounds separately).
func ParsePageSpec(spec string, pageCount int) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
	}

	seen := make(map[int]bool)
	var pages []int

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
		}

		if idx := strings.Index(part, "-"); idx >= 0 {
			startStr := strings.TrimSpace(part[:idx])
			endStr := strings.TrimSpace(part[idx+1:])
			start, err := strconv.Atoi(startStr)
			if err != nil {
				return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
			}
			end, err := strconv.Atoi(endStr)
			if err != nil {
				return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
			}
			if start <= 0 || end <= 0 || end < start {
				return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
			}
			for p := start; p <= end; p++ {
				if !seen[p] {
					seen[p] = true
					pages = append(pages, p)
				}
			}
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
		}
		if !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
	}

	if len(pages) == 0 {
		return nil, docerrors.E("processor.ParsePageSpec", docerrors.InvalidPageSpec, nil)
	}

	sort.Ints(pages)

	if pageCount > 0 && pages[len(pages)-1] > pageCount {
		return nil, docerrors.E("processor.ParsePageSpec", docerrors.PageOutOfRange, nil)
	}

	return pages, nil
}

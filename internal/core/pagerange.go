package core

import (
	"strconv"
	"strings"
)

// ValidatePageRange checks a range expression like "1-5", "1,3,5" or
// "1-10,15" against the document's page count. An empty range means all
// pages. Validation is skipped when the page count is unknown.
func ValidatePageRange(pageRange string, totalPages int) error {
	pageRange = strings.TrimSpace(pageRange)
	if pageRange == "" {
		return nil
	}
	if totalPages < 1 {
		return nil
	}

	for _, part := range strings.Split(pageRange, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return validationErrorf("invalid range format: %q", part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return validationErrorf("invalid range format: %q", part)
			}
			if start < 1 {
				return validationErrorf("page numbers must be >= 1")
			}
			if end > totalPages {
				return validationErrorf("the uploaded file has only %d pages", totalPages)
			}
			if start > end {
				return validationErrorf("range start must be <= range end")
			}
		} else {
			page, err := strconv.Atoi(part)
			if err != nil {
				return validationErrorf("invalid page number: %q", part)
			}
			if page < 1 {
				return validationErrorf("page numbers must be >= 1")
			}
			if page > totalPages {
				return validationErrorf("the uploaded file has only %d pages", totalPages)
			}
		}
	}
	return nil
}

package ocr

import (
	"context"
	"strings"
)

// Language is the only recognition language; there is no auto-detection.
const Language = "eng"

// TextExtractor turns an image on disk into plain text.
type TextExtractor interface {
	// Extract returns every detected text region joined by a single space, in
	// the detector's order. An image without text yields "" and no error; an
	// unreadable image yields an apperr decode error.
	Extract(ctx context.Context, imagePath string) (string, error)
}

// JoinRegions trims each region, drops empty ones and joins the rest with a
// single space.
func JoinRegions(regions []string) string {
	kept := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.Join(strings.Fields(r), " ")
		if r != "" {
			kept = append(kept, r)
		}
	}
	return strings.Join(kept, " ")
}

package storage

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var segmentSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ProductImagePath returns products/{productID}/{imageID}.{ext}.
func ProductImagePath(productID, imageID, contentType string) (string, error) {
	productID = sanitizeSegment(productID)
	imageID = sanitizeSegment(imageID)
	if productID == "" || imageID == "" {
		return "", fmt.Errorf("storage: product id and image id are required")
	}
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", errContentTypeDenied
	}
	return fmt.Sprintf("products/%s/%s.%s", productID, imageID, ext), nil
}

// SalesExportPath returns sales/{from}_{to}.csv using calendar dates.
func SalesExportPath(from, to time.Time) string {
	return fmt.Sprintf("sales/%s_%s.csv", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// PublicURL is the unauthenticated HTTPS location of an object in a public bucket.
func PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + url.PathEscape(bucket) + "/" + (&url.URL{Path: object}).EscapedPath()
}

func sanitizeSegment(value string) string {
	return strings.Trim(segmentSanitizer.ReplaceAllString(strings.TrimSpace(value), "-"), "-")
}

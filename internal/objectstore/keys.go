package objectstore

import (
	"fmt"

	"github.com/google/uuid"
)

// Storage key layout. The hard-delete worker relies on exactly these two
// prefixes to find everything belonging to a document, so changing them is
// a breaking contract change.
//
//	{tenant}/documents/{doc}/{version}/original        uploaded binary
//	{tenant}/derived/{doc}/{version}/{artifact}        all derivatives

func OriginalKey(tenantID, documentID, versionID uuid.UUID) string {
	return fmt.Sprintf("%s/documents/%s/%s/original", tenantID, documentID, versionID)
}

func DocumentPrefix(tenantID, documentID uuid.UUID) string {
	return fmt.Sprintf("%s/documents/%s/", tenantID, documentID)
}

func DerivedPrefix(tenantID, documentID uuid.UUID) string {
	return fmt.Sprintf("%s/derived/%s/", tenantID, documentID)
}

func derivedKey(tenantID, documentID, versionID uuid.UUID, artifact string) string {
	return fmt.Sprintf("%s/derived/%s/%s/%s", tenantID, documentID, versionID, artifact)
}

func ThumbnailKey(tenantID, documentID, versionID uuid.UUID, size int) string {
	return derivedKey(tenantID, documentID, versionID, fmt.Sprintf("thumbnails/%d.png", size))
}

func OCRTextKey(tenantID, documentID, versionID uuid.UUID) string {
	return derivedKey(tenantID, documentID, versionID, "ocr/text.txt")
}

func SplitPageKey(tenantID, documentID, versionID uuid.UUID, page int) string {
	return derivedKey(tenantID, documentID, versionID, fmt.Sprintf("pages/page-%d.pdf", page))
}

func ScanResultKey(tenantID, documentID, versionID uuid.UUID) string {
	return derivedKey(tenantID, documentID, versionID, "scan/result.json")
}

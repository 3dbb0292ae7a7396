package objectstore_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/docvault/docvault/internal/objectstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	tenant := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	doc := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	version := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	assert.Equal(t,
		fmt.Sprintf("%s/documents/%s/%s/original", tenant, doc, version),
		objectstore.OriginalKey(tenant, doc, version))

	assert.Equal(t,
		fmt.Sprintf("%s/derived/%s/%s/thumbnails/256.png", tenant, doc, version),
		objectstore.ThumbnailKey(tenant, doc, version, 256))

	assert.Equal(t,
		fmt.Sprintf("%s/derived/%s/%s/ocr/text.txt", tenant, doc, version),
		objectstore.OCRTextKey(tenant, doc, version))

	assert.Equal(t,
		fmt.Sprintf("%s/derived/%s/%s/pages/page-3.pdf", tenant, doc, version),
		objectstore.SplitPageKey(tenant, doc, version, 3))

	assert.Equal(t,
		fmt.Sprintf("%s/derived/%s/%s/scan/result.json", tenant, doc, version),
		objectstore.ScanResultKey(tenant, doc, version))
}

// Every key the pipeline can produce must land under one of the two purge
// prefixes, or hard delete would leak objects.
func TestAllKeysFallUnderPurgePrefixes(t *testing.T) {
	tenant := uuid.New()
	doc := uuid.New()
	version := uuid.New()

	docPrefix := objectstore.DocumentPrefix(tenant, doc)
	derivedPrefix := objectstore.DerivedPrefix(tenant, doc)

	assert.True(t, strings.HasPrefix(objectstore.OriginalKey(tenant, doc, version), docPrefix))

	derived := []string{
		objectstore.ThumbnailKey(tenant, doc, version, 128),
		objectstore.OCRTextKey(tenant, doc, version),
		objectstore.SplitPageKey(tenant, doc, version, 1),
		objectstore.ScanResultKey(tenant, doc, version),
	}
	for _, key := range derived {
		assert.True(t, strings.HasPrefix(key, derivedPrefix), key)
	}
}

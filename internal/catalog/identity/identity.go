// Package identity derives the stable key and the content fingerprint of a
// normalized record.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"catalogsync-backend/internal/catalog"
)

// bumping this invalidates every stored fingerprint, forcing a rewrite of
// all rows on the next run
const fingerprintVersion = 1

// fields that may change between crawls of an unchanged product
var volatileFields = []string{"page_num"}

// Resolve returns the sku as the key when there is one, otherwise a hash of
// the source url.
func Resolve(record catalog.NormalizedRecord) catalog.ProductKey {
	if record.SKU != nil {
		sku := strings.TrimSpace(*record.SKU)
		if sku != "" {
			return catalog.ProductKey{ID: sku}
		}
	}
	return catalog.ProductKey{
		ID:      hashString(strings.TrimSpace(record.SourceURL)),
		Derived: true,
	}
}

// Fingerprint hashes a canonical serialization of the record, json objects
// are serialized with sorted keys so field order never matters.
func Fingerprint(record catalog.NormalizedRecord) (catalog.Fingerprint, error) {
	canonical, err := canonicalize(record)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return catalog.Fingerprint(hex.EncodeToString(sum[:])), nil
}

// MustFingerprint is Fingerprint for records known to serialize, which is
// every record built by the normalizer.
func MustFingerprint(record catalog.NormalizedRecord) catalog.Fingerprint {
	fp, err := Fingerprint(record)
	if err != nil {
		panic(fmt.Sprintf("fingerprint: %v", err))
	}
	return fp
}

func canonicalize(record catalog.NormalizedRecord) (map[string]any, error) {
	// unset and empty lists are the same thing
	if len(record.Grapes) == 0 {
		record.Grapes = nil
	}
	if len(record.Breadcrumbs) == 0 {
		record.Breadcrumbs = nil
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	err = json.Unmarshal(encoded, &fields)
	if err != nil {
		return nil, err
	}
	for _, field := range volatileFields {
		delete(fields, field)
	}
	fields["_version"] = fingerprintVersion
	return fields, nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

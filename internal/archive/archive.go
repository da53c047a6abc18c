// Package archive persists raw search responses for replay and audit.
// Implementations write the provider payload captured at collection time;
// losing an archive write never fails a collection.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ObjectKey derives the canonical object path for one keyword snapshot.
// Keywords are hashed so keys stay ASCII regardless of the query language.
func ObjectKey(date, keyword string) string {
	sum := sha256.Sum256([]byte(keyword))
	return fmt.Sprintf("snapshots/%s/%s.json", date, hex.EncodeToString(sum[:]))
}

// Noop discards every payload. Used when no archive backend is configured.
type Noop struct{}

// Save for Noop does nothing and returns an empty URI.
func (Noop) Save(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}

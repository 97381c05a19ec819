package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"cloud.google.com/go/civil"
)

// ContentHash is the de-duplication key of a transaction: the SHA-256 hex
// digest of "date|amount|description". The amount uses the shortest
// representation that round-trips, so 12.50 and 12.5 hash alike.
func ContentHash(date civil.Date, amount float64, description string) string {
	input := date.String() + "|" + strconv.FormatFloat(amount, 'f', -1, 64) + "|" + description
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

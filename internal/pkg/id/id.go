package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and safe for use as DynamoDB partition keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewCase generates a case id ("ver_" + ULID).
func NewCase() string {
	return "ver_" + New()
}

// NewIdempotencyKey generates a server-side idempotency key
// ("idem_" + 32 lowercase hex chars) for clients that don't supply one.
func NewIdempotencyKey() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("idempotency key entropy: " + err.Error())
	}
	return "idem_" + hex.EncodeToString(b)
}

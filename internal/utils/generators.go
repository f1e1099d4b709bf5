package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewQRToken returns the opaque token encoded into a ticket's QR code.
// The token is a sha256 digest over a random UUID plus the current
// nanosecond clock, so it carries no structure an outside party could learn
// from other tokens.
func NewQRToken() string {
	seed := uuid.NewString() + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NewID returns a random UUID for primary keys.
func NewID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID. Confirm request ids are
// required to be UUID-class values so flaky scanner clients cannot collide
// by accident.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

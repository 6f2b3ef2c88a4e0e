package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/armandavtyann/ticket/internal/domain"
)

// Key derives the deterministic idempotency key for a job creation request.
// The payload's ticket ids are sorted before hashing so submission order does
// not change the key. The derivation (sha256 over "userId:type:payloadJSON",
// hex-encoded) must stay in sync with the web client, which precomputes the
// same key to short-circuit duplicate submits.
func Key(userID string, jobType domain.JobType, payload domain.BulkDeletePayload) string {
	normalized, _ := json.Marshal(payload.Normalized())
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s", userID, jobType, normalized))
	return hex.EncodeToString(sum[:])
}

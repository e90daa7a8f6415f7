package domain

// IdempotencyRecord binds a (client_id, idempotency_key) pair to the case it
// created. Written once with a conditional put and immutable thereafter;
// ExpiresAt is a Unix timestamp used as the DynamoDB TTL (24h).
type IdempotencyRecord struct {
	Key       string `json:"-" dynamodbav:"idem_key"` // IDEM#<client_id>#<idempotency_key>
	ClientID  string `json:"client_id" dynamodbav:"client_id"`
	CaseID    string `json:"case_id" dynamodbav:"case_id"`
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// IdempotencyStorageKey computes the partition key for a reservation.
func IdempotencyStorageKey(clientID, idempotencyKey string) string {
	return "IDEM#" + clientID + "#" + idempotencyKey
}

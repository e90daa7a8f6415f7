package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldStatus      = "status"
	fieldVersion     = "version"
	fieldUpdatedAt   = "updated_at"
	fieldCompletedAt = "completed_at"
)

package redis

// Redis key naming conventions for submission records.
// All keys are prefixed with "gateway:" to avoid collisions.

const keyPrefix = "gateway:"

// submissionKey returns the key for a submission entity: gateway:submission:{id}
func submissionKey(id string) string { return keyPrefix + "submission:" + id }

// submissionIndexKey is the Sorted Set tracking submission IDs in
// insertion order (score = creation time in milliseconds).
const submissionIndexKey = keyPrefix + "submission_idx"

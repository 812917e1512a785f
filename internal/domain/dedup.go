package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const keySeparator = "\x1f"

// ProgressKey is the (user, date) composite key of a progress entry.
func ProgressKey(userID, date string) string {
	return userID + "/" + date
}

// ActivityKey derives the content-addressed key of an activity record.
func ActivityKey(userID string, typ ActivityType, date time.Time, title string) string {
	return digest(userID, string(typ), date.UTC().Format(time.RFC3339Nano), title)
}

// GoalKey derives the content-addressed key of a study goal.
func GoalKey(userID, title string, createdAt time.Time) string {
	return digest(userID, title, createdAt.UTC().Format(time.RFC3339Nano))
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, keySeparator)))
	return hex.EncodeToString(sum[:])
}

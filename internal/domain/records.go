package domain

import (
	"encoding/json"
	"time"
)

// Kind names one of the four user-data entity kinds.
type Kind string

const (
	KindProfile  Kind = "profile"
	KindProgress Kind = "progress"
	KindActivity Kind = "activity"
	KindGoal     Kind = "goal"
)

// Kinds lists every kind in reconciliation order. The profile must come first.
var Kinds = []Kind{KindProfile, KindProgress, KindActivity, KindGoal}

// HistoryKinds are the kinds that reference an existing profile.
var HistoryKinds = []Kind{KindProgress, KindActivity, KindGoal}

// ActivityType classifies a study activity.
type ActivityType string

const (
	ActivitySummary    ActivityType = "summary"
	ActivityFlashcards ActivityType = "flashcards"
	ActivityQA         ActivityType = "qa"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivitySummary, ActivityFlashcards, ActivityQA:
		return true
	}
	return false
}

// DateLayout is the calendar date format used for progress and goal due dates.
const DateLayout = "2006-01-02"

// UserProfile is the single per-user profile row.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityRecord is one entry in the append-only study history.
type ActivityRecord struct {
	UserID  string          `json:"user_id"`
	Type    ActivityType    `json:"type"`
	Date    time.Time       `json:"date"`
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StudyGoal is a user-defined goal.
type StudyGoal struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	DueDate   string    `json:"due_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressEntry records study time for one calendar date.
type ProgressEntry struct {
	UserID  string   `json:"user_id"`
	Date    string   `json:"date"`
	Minutes int      `json:"minutes"`
	Topics  []string `json:"topics,omitempty"`
}

// LocalRecords is everything the local store holds for one user.
type LocalRecords struct {
	Profile    *UserProfile
	Activities []ActivityRecord
	Goals      []StudyGoal
	Progress   []ProgressEntry
}

// Empty reports whether there is nothing to migrate.
func (l *LocalRecords) Empty() bool {
	return l == nil || (l.Profile == nil && len(l.Activities) == 0 && len(l.Goals) == 0 && len(l.Progress) == 0)
}

// Len returns the number of local records of the given kind.
// The profile always counts as one because a pass creates it even when absent locally.
func (l *LocalRecords) Len(kind Kind) int {
	switch kind {
	case KindProfile:
		return 1
	case KindProgress:
		return len(l.Progress)
	case KindActivity:
		return len(l.Activities)
	case KindGoal:
		return len(l.Goals)
	}
	return 0
}

// Records returns copies of the history records of kind in local order.
func (l *LocalRecords) Records(kind Kind) []Record {
	var out []Record
	switch kind {
	case KindProgress:
		out = make([]Record, 0, len(l.Progress))
		for _, rec := range l.Progress {
			rec := rec
			out = append(out, &rec)
		}
	case KindActivity:
		out = make([]Record, 0, len(l.Activities))
		for _, rec := range l.Activities {
			rec := rec
			out = append(out, &rec)
		}
	case KindGoal:
		out = make([]Record, 0, len(l.Goals))
		for _, rec := range l.Goals {
			rec := rec
			out = append(out, &rec)
		}
	}
	return out
}

// Record is a candidate row for the remote store.
type Record interface {
	Kind() Kind
	// DedupKey identifies the record remotely. It is stable across passes.
	DedupKey() string
	Owner() string
	// Validate reports ErrMalformedRecord when required fields are missing.
	Validate() error
	setOwner(userID string)
}

// RemoteRecord is what the remote store reports for an existing row.
type RemoteRecord struct {
	Kind      Kind
	Key       string
	UserID    string
	CreatedAt time.Time
}

func (p *UserProfile) Kind() Kind { return KindProfile }
func (p *UserProfile) DedupKey() string { return p.UserID }
func (p *UserProfile) Owner() string { return p.UserID }
func (p *UserProfile) setOwner(userID string) { p.UserID = userID }

// Validate implements Record.
func (p *UserProfile) Validate() error {
	if p.UserID == "" {
		return malformed(KindProfile, "user id is required")
	}
	return nil
}

func (a *ActivityRecord) Kind() Kind { return KindActivity }
func (a *ActivityRecord) DedupKey() string { return ActivityKey(a.UserID, a.Type, a.Date, a.Title) }
func (a *ActivityRecord) Owner() string { return a.UserID }
func (a *ActivityRecord) setOwner(userID string) { a.UserID = userID }

// Validate implements Record.
func (a *ActivityRecord) Validate() error {
	switch {
	case a.Date.IsZero():
		return malformed(KindActivity, "date is required")
	case !a.Type.Valid():
		return malformed(KindActivity, "unknown type %q", a.Type)
	case a.Title == "":
		return malformed(KindActivity, "title is required")
	}
	return nil
}

func (g *StudyGoal) Kind() Kind { return KindGoal }
func (g *StudyGoal) DedupKey() string { return GoalKey(g.UserID, g.Title, g.CreatedAt) }
func (g *StudyGoal) Owner() string { return g.UserID }
func (g *StudyGoal) setOwner(userID string) { g.UserID = userID }

// Validate implements Record.
func (g *StudyGoal) Validate() error {
	switch {
	case g.Title == "":
		return malformed(KindGoal, "title is required")
	case g.CreatedAt.IsZero():
		return malformed(KindGoal, "created_at is required")
	}
	if g.DueDate != "" {
		if _, err := time.Parse(DateLayout, g.DueDate); err != nil {
			return malformed(KindGoal, "due date %q is not YYYY-MM-DD", g.DueDate)
		}
	}
	return nil
}

func (e *ProgressEntry) Kind() Kind { return KindProgress }
func (e *ProgressEntry) DedupKey() string { return ProgressKey(e.UserID, e.Date) }
func (e *ProgressEntry) Owner() string { return e.UserID }
func (e *ProgressEntry) setOwner(userID string) { e.UserID = userID }

// Validate implements Record.
func (e *ProgressEntry) Validate() error {
	if e.Date == "" {
		return malformed(KindProgress, "date is required")
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return malformed(KindProgress, "date %q is not YYYY-MM-DD", e.Date)
	}
	if e.Minutes < 0 {
		return malformed(KindProgress, "minutes must not be negative")
	}
	return nil
}

// Claim binds r to userID. An empty owner is filled in; a different owner is malformed.
func Claim(r Record, userID string) error {
	switch r.Owner() {
	case "":
		r.setOwner(userID)
	case userID:
	default:
		return malformed(r.Kind(), "record belongs to %q", r.Owner())
	}
	return r.Validate()
}

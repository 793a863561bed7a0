package domain

// SubjectType differentiates reporters from support staff.
type SubjectType string

const (
	SubjectTypeReporter SubjectType = "REPORTER"
	SubjectTypeStaff    SubjectType = "STAFF"
	SubjectTypeSystem   SubjectType = "SYSTEM"
)

// Actor identifies who triggered a lifecycle change.
type Actor struct {
	Type SubjectType `json:"type"`
	// ChatID is the reporter's user id or the support chat id.
	ChatID int64 `json:"chat_id,omitempty"`
}

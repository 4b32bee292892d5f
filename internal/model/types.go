package model

import "time"

// ThingType distinguishes the forum item kinds the bot handles.
type ThingType int

const (
	TypePost ThingType = iota + 1
	TypeComment
	TypePrivateMessage
)

func (t ThingType) String() string {
	switch t {
	case TypePost:
		return "post"
	case TypeComment:
		return "comment"
	case TypePrivateMessage:
		return "private_message"
	}
	return "unknown"
}

// Thing is a forum item: a post, a comment, or a private message.
// Parent, Root and Children start out nil and are populated by
// Client.FetchParentAndChildren before any award logic runs. A Thing
// is transient; nothing retains one past a single processing pass.
type Thing struct {
	ID         string
	Type       ThingType
	Title      string
	Body       string
	AuthorName string
	CreatedUTC time.Time
	IsEdited   bool
	ParentID   string
	Parent     *Thing
	Root       *Thing
	Children   []*Thing
}

// ResultType classifies the outcome of validating one candidate award.
type ResultType int

const (
	ResultSuccess ResultType = iota + 1
	ResultCommentTooShort
	ResultCannotAwardOP
	ResultCannotAwardBot
	ResultCannotAwardSelf
)

func (r ResultType) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCommentTooShort:
		return "comment_too_short"
	case ResultCannotAwardOP:
		return "cannot_award_op"
	case ResultCannotAwardBot:
		return "cannot_award_bot"
	case ResultCannotAwardSelf:
		return "cannot_award_self"
	}
	return "unknown"
}

// ValidationResult is immutable once produced; ReplyBody holds the
// already-rendered reply text for the outcome.
type ValidationResult struct {
	Type         ResultType
	IsValidDelta bool
	IssueCount   int
	ReplyBody    string
}

// ReplyDetectionResult reports whether the bot already replied to a
// comment and with what outcome. Derived on every pass, never persisted.
type ReplyDetectionResult struct {
	HasReplied bool
	WasSuccess bool
	Reply      *Thing
}

// Window is a leaderboard aggregation range.
type Window int

const (
	Daily Window = iota + 1
	Weekly
	Monthly
	Yearly
	AllTime
)

// Windows lists every window in rendering order.
func Windows() []Window { return []Window{Daily, Weekly, Monthly, Yearly, AllTime} }

func (w Window) String() string {
	switch w {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	case AllTime:
		return "All Time"
	}
	return "unknown"
}

// DeltaboardEntry is one ranked user. Rank is 1-based and unique within
// a board: entries sort by count descending, username ascending.
type DeltaboardEntry struct {
	Username string
	Count    int
	Rank     int
}

// Deltaboard is one window's ranked entries, ordered by rank ascending.
type Deltaboard struct {
	Window  Window
	Entries []DeltaboardEntry
}

// MessageKind tags queue messages so the worker can dispatch them.
type MessageKind int

const (
	KindComment MessageKind = iota + 1
	KindPrivateMessage
)

func (k MessageKind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindPrivateMessage:
		return "private_message"
	}
	return "unknown"
}

// QueueMessage is the envelope handed from ingestion to processing.
// The payload format is an internal contract, not wire-stable.
type QueueMessage struct {
	ID      string
	Kind    MessageKind
	Payload []byte
}

// QueuedComment is the serialized subset of a comment that survives the
// queue hop. Parent and children are re-fetched on the processing side.
type QueuedComment struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	Body       string    `json:"body"`
	AuthorName string    `json:"author"`
	CreatedUTC time.Time `json:"created_utc"`
	IsEdited   bool      `json:"is_edited"`
}

// QueuedMessage is the serialized subset of a private message.
type QueuedMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	AuthorName string    `json:"author"`
	CreatedUTC time.Time `json:"created_utc"`
}

// UserCount is one user's award count inside a window.
type UserCount struct {
	Username string
	Count    int
}

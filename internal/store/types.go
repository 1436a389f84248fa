package store

import "time"

// Kind enumerates the categories a distilled memory can carry.
type Kind string

const (
	KindBugfix    Kind = "bugfix"
	KindFeature   Kind = "feature"
	KindRefactor  Kind = "refactor"
	KindDiscovery Kind = "discovery"
	KindDecision  Kind = "decision"
	KindChange    Kind = "change"
	KindOther     Kind = "other"
)

// kindPriority orders kinds for context-renderer selection: decision >
// bugfix > feature > refactor > discovery > change > other. Lower value
// sorts first.
var kindPriority = map[Kind]int{
	KindDecision:  0,
	KindBugfix:    1,
	KindFeature:   2,
	KindRefactor:  3,
	KindDiscovery: 4,
	KindChange:    5,
	KindOther:     6,
}

// KindPriority returns the selection-ordering rank for k; unknown kinds
// sort last, alongside "other".
func KindPriority(k Kind) int {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return kindPriority[KindOther]
}

// MemoryStatus is the lifecycle state of a Memory row.
type MemoryStatus string

const (
	StatusActive     MemoryStatus = "active"
	StatusStale      MemoryStatus = "stale"
	StatusCompressed MemoryStatus = "compressed"
)

// Event is a pending tool-use row awaiting distillation.
type Event struct {
	ID            int64
	SessionID     string
	Project       string
	ToolName      string
	ToolInput     string
	ToolResponse  string
	CreatedAtUnix int64
}

// Memory is a distilled observation.
type Memory struct {
	ID              int64
	SessionID       string
	Project         string
	Kind            Kind
	Title           string
	Subtitle        string
	Narrative       string
	Facts           []string
	Concepts        []string
	FilesRead       []string
	FilesModified   []string
	Status          MemoryStatus
	DiscoveryTokens int64
	UserAuthored    bool
	CreatedAtUnix   int64
}

// SessionSummary is the single row per (session, project) produced by the
// summarizer.
type SessionSummary struct {
	SessionID       string
	Project         string
	Request         string
	Completed       string
	Decisions       string
	Learned         string
	NextSteps       string
	Preferences     string
	DiscoveryTokens int64
	UpdatedAtUnix   int64
}

// SessionMapEntry maps a host content-session id to a stable memory
// session id and project.
type SessionMapEntry struct {
	ContentSessionID string
	MemorySessionID  string
	Project          string
	PromptCount      int
	CreatedAtUnix    int64
}

// CooldownRow is the per-project rate-limit state owned by the Summarizer.
type CooldownRow struct {
	Project           string
	LastSummarizeUnix int64
	LastMessageHash   string
}

// ContextOptions configures ListContext (the context renderer's query) —
// field names track the option table in the rendering spec exactly.
type ContextOptions struct {
	TotalMemories int
	SessionCount  int
	Kinds         []Kind
}

// ContextResult is the raw data backing a rendered context document.
type ContextResult struct {
	Memories  []Memory
	Summaries []SessionSummary
	Totals    Totals
}

// Totals carries the aggregate counts a renderer needs without a second query.
type Totals struct {
	ActiveCount int
	StaleCount  int
}

// SearchHit is one full-text search result.
type SearchHit struct {
	ID        int64
	Title     string
	Snippet   string
	Kind      Kind
	Project   string
	Rank      float64
	CreatedAt int64
}

func unixNow() int64 { return time.Now().Unix() }

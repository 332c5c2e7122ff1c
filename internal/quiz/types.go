// Package quiz holds the read-only quiz definition types (spec §3) and the
// sum-type option parser (spec §3.1, Design note "Option polymorphism").
// Nothing in this package mutates once a Session has snapshotted a Quiz.
package quiz

// ItemKind is one of the four item shapes a Round can contain.
type ItemKind string

const (
	ItemQuestion   ItemKind = "question"
	ItemBreak      ItemKind = "break"
	ItemScoreboard ItemKind = "scoreboard"
	ItemMinigame   ItemKind = "minigame"
)

// QuestionType is the grading-relevant type tag for a Question. It governs
// both the §3.1 option encoding and the §4.3 grading rule.
type QuestionType string

const (
	TypeMCSingle          QuestionType = "mc_single"
	TypeMCMulti           QuestionType = "mc_multi"
	TypeTrueFalse         QuestionType = "true_false"
	TypePoll              QuestionType = "poll"
	TypeOrderedList       QuestionType = "ordered_list"
	TypeNumericEstimation QuestionType = "numeric_estimation"
	TypeOpenText          QuestionType = "open_text"
	TypeYearGuess         QuestionType = "year_guess"   // reduces to numeric estimation
	TypeTitleGuess        QuestionType = "title_guess"  // reduces to open text
	TypeArtistGuess       QuestionType = "artist_guess" // reduces to open text
)

// Option is the raw, historically-encoded row shape stored with a Question.
// Its fields are reinterpreted per QuestionType — see ParseOptions.
type Option struct {
	Text      string
	IsCorrect bool
	Order     int
}

// MediaRef points at an externally-hosted asset; the core never fetches or
// validates it, only forwards the reference to clients.
type MediaRef struct {
	Kind string // e.g. "image", "audio", "video"
	URL  string
}

// Question is immutable authoring content referenced by a question Item.
type Question struct {
	ID          string
	Type        QuestionType
	Prompt      string
	Explanation string
	Media       []MediaRef
	Options     []Option
}

// ItemOverrides carries the per-item settings that can deviate from the
// quiz's scoring defaults.
type ItemOverrides struct {
	TimerSeconds     int
	BasePoints       int
	ShowExplanation  bool
}

// Item is one entry in a Round's ordered list.
type Item struct {
	ID        string
	Kind      ItemKind
	Overrides ItemOverrides
	Question  *Question // non-nil iff Kind == ItemQuestion
}

// Round is an ordered, named group of Items.
type Round struct {
	ID    string
	Title string
	Items []Item
}

// ScoringSettings are copied onto the Session at creation time so later
// authoring edits never retroactively change a running session's math.
type ScoringSettings struct {
	StreakBonusEnabled    bool
	StreakBonusPoints     int
	SpeedPodiumEnabled    bool
	SpeedPodiumPercentage [3]int // rank 1..3, default {30, 20, 10}
}

// DefaultScoringSettings mirrors the spec's stated defaults (§4.4).
func DefaultScoringSettings() ScoringSettings {
	return ScoringSettings{
		StreakBonusEnabled:    true,
		StreakBonusPoints:     0,
		SpeedPodiumEnabled:    true,
		SpeedPodiumPercentage: [3]int{30, 20, 10},
	}
}

// Quiz is the read-only definition a Session snapshots at creation (§4.2:
// later authoring writes must not affect sessions already running).
type Quiz struct {
	ID      string
	Rounds  []Round
	Scoring ScoringSettings
}

// TotalItems is the flattened count of items across all rounds, used for
// "at end of quiz" NextItem guard logic in internal/session.
func (q *Quiz) TotalItems() int {
	n := 0
	for _, r := range q.Rounds {
		n += len(r.Items)
	}
	return n
}

// ItemAt resolves a flattened item index to its Round and Item, or ok=false
// if the index is out of range.
func (q *Quiz) ItemAt(index int) (round Round, item Item, ok bool) {
	remaining := index
	for _, r := range q.Rounds {
		if remaining < len(r.Items) {
			return r, r.Items[remaining], true
		}
		remaining -= len(r.Items)
	}
	return Round{}, Item{}, false
}

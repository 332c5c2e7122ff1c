package transport

// Inbound payloads. Every struct is decoded from Envelope.Payload and
// checked with go-playground/validator before being turned into a Session
// command — this is the BadRequest boundary spec §7 describes.

type HostShowScoreboardPayload struct {
	Scope string `json:"scope" validate:"required,oneof=top3 top5 top10 all"`
}

type HostStartMinigamePayload struct {
	Kind string `json:"kind" validate:"required,oneof=classic king_of_lake swan_swarm"`
}

type PlayerJoinPayload struct {
	Name   string `json:"name" validate:"required,min=1,max=32"`
	Avatar string `json:"avatar" validate:"max=64"`
}

// PlayerAnswerPayload carries exactly the fields relevant to the answer's
// question type; unused fields are left zero-valued by the client.
type PlayerAnswerPayload struct {
	ItemID            string  `json:"itemId" validate:"required"`
	SelectedOptionIDs []int   `json:"selectedOptionIds,omitempty"`
	OrderedOptionIDs  []int   `json:"orderedOptionIds,omitempty"`
	Numeric           float64 `json:"numeric,omitempty"`
	Text              string  `json:"text,omitempty" validate:"max=500"`
}

// PlayerLeavePayload is empty; the player is identified by their connection.
type PlayerLeavePayload struct{}

// PlayerMinigameInputPayload is sent at the client's own rate (spec §4.7
// targets up to the tick rate); inputs older than the staleness window at
// tick time are treated as zero by the minigame engine, not rejected here.
type PlayerMinigameInputPayload struct {
	Thrust float64 `json:"thrust" validate:"min=-1,max=1"`
	Turn   float64 `json:"turn" validate:"min=-1,max=1"`
	Sprint bool    `json:"sprint,omitempty"`
	Dash   bool    `json:"dash,omitempty"`
}

// GetSessionStatePayload is empty; it is a request for a catch-up snapshot.
type GetSessionStatePayload struct{}

// HostPausePayload, HostResumePayload, HostLockPayload, HostRevealPayload,
// HostNextPayload, HostCancelItemPayload, HostEndPayload are all empty —
// they act on "the current item" / "the session" with no parameters.
type (
	HostPausePayload      struct{}
	HostResumePayload     struct{}
	HostLockPayload       struct{}
	HostRevealPayload     struct{}
	HostNextPayload       struct{}
	HostCancelItemPayload struct{}
	HostEndPayload        struct{}
	HostStartPayload      struct{}
)

package analyzer

// Mechanics is the mechanics flag set (spec §4.2).
type Mechanics struct {
	Turns        bool `json:"turns"`
	Board        bool `json:"board"`
	Score        bool `json:"score"`
	Timer        bool `json:"timer"`
	Levels       bool `json:"levels"`
	Lives        bool `json:"lives"`
	Realtime     bool `json:"realtime"`
	WinCondition bool `json:"winCondition"`
	Physics      bool `json:"physics"`
	Rounds       bool `json:"rounds"`
}

// Elements is the interactive-elements inventory.
type Elements struct {
	ButtonLabels   []string `json:"buttonLabels"`
	ButtonIDs      []string `json:"buttonIds"`
	HasForm        bool     `json:"hasForm"`
	HasCanvas      bool     `json:"hasCanvas"`
	BoardDimension int      `json:"boardDimension,omitempty"` // 0 = not inferrable
	CellCount      int      `json:"cellCount,omitempty"`
}

// Interactions is the interaction-surfaces inventory.
type Interactions struct {
	ClickCount int  `json:"clickCount"`
	Draggable  bool `json:"draggable"`
	Keyboard   bool `json:"keyboard"`
	Touch      bool `json:"touch"`
	Gamepad    bool `json:"gamepad"`
}

// StateManagement is the state-management inventory.
type StateManagement struct {
	GlobalStateMarkers []string `json:"globalStateMarkers"`
	UsesStorage        bool     `json:"usesStorage"`
	CandidateStateVars []string `json:"candidateStateVars"`
}

// Network is the network-feature inventory.
type Network struct {
	Sockets bool `json:"sockets"`
	HTTP    bool `json:"http"`
	Peer    bool `json:"peer"`
}

// Complexity buckets a numeric complexity score.
type Complexity struct {
	Score  int    `json:"score"`
	Bucket string `json:"bucket"` // simple | moderate | complex
}

// Report is the Game Analyzer's complete output (spec §4.2).
type Report struct {
	Kind            string          `json:"kind"`
	Mechanics       Mechanics       `json:"mechanics"`
	Elements        Elements        `json:"elements"`
	Interactions    Interactions    `json:"interactions"`
	StateManagement StateManagement `json:"stateManagement"`
	Network         Network         `json:"network"`
	Complexity      Complexity      `json:"complexity"`
}

const (
	BucketSimple   = "simple"
	BucketModerate = "moderate"
	BucketComplex  = "complex"
)

// fallbackKind is returned when no signal passes threshold (spec §4.2 "Errors").
const fallbackKind = "custom-game"

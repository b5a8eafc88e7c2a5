package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarises one training run and the melody generated after it.
type RunRecord struct {
	VersionedRecord
	ID                string  `json:"id"`
	CreatedAtUTC      string  `json:"created_at_utc"`
	Episodes          int     `json:"episodes"`
	Seed              int64   `json:"seed"`
	LearningRate      float64 `json:"learning_rate"`
	Gamma             float64 `json:"gamma"`
	InitialEpsilon    float64 `json:"initial_epsilon"`
	FinalEpsilon      float64 `json:"final_epsilon"`
	EpsilonSchedule   string  `json:"epsilon_schedule"`
	PatternThreshold  float64 `json:"pattern_threshold"`
	States            int     `json:"states"`
	Patterns          int     `json:"patterns"`
	MeasuresCompleted int     `json:"measures_completed"`
	FinalReward       float64 `json:"final_reward"`
	BestReward        float64 `json:"best_reward"`
	MelodyReward      float64 `json:"melody_reward"`
	MelodyNotes       int     `json:"melody_notes"`
}

type NoteRecord struct {
	Pitch    string  `json:"pitch"`
	Duration string  `json:"duration"`
	Beats    float64 `json:"beats"`
	MIDI     int     `json:"midi"`
}

type MelodyRecord struct {
	VersionedRecord
	RunID       string       `json:"run_id"`
	Tempo       int          `json:"tempo"`
	TotalReward float64      `json:"total_reward"`
	TotalBeats  float64      `json:"total_beats"`
	Notes       []NoteRecord `json:"notes"`
}

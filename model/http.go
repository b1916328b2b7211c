package model

type NoteInput struct {
	Onset    int64  `json:"onset"`
	Offset   *int64 `json:"offset,omitempty"`
	Pitch    uint8  `json:"pitch"`
	Velocity uint8  `json:"velocity"`
	Voice    *int   `json:"voice,omitempty"`
}

type BatchRequestBody struct {
	Notes []NoteInput `json:"notes"`
}

type SessionResponse struct {
	SessionId string `json:"session_id"`
}

type HypothesisResult struct {
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	VoiceScore     float64 `json:"voice_score"`
	BeatScore      float64 `json:"beat_score"`
	HierarchyScore float64 `json:"hierarchy_score"`
	Meter          string  `json:"meter"`
	Description    string  `json:"description"`
	Voices         [][]int `json:"voices"`
	Tatums         []Tatum `json:"tatums"`
}

type HypothesesResponse struct {
	SessionId string             `json:"session_id"`
	Closed    bool               `json:"closed"`
	Exhausted bool               `json:"exhausted"`
	Results   []HypothesisResult `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}

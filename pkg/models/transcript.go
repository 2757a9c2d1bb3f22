package models

import "time"

// RawSegment is one speaker-labeled fragment as produced by a transcription
// service. Start/End are offsets into the recording in milliseconds; nil
// means the service omitted them.
type RawSegment struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Text    string `json:"text" yaml:"text"`
	StartMs *int64 `json:"start" yaml:"start"`
	EndMs   *int64 `json:"end" yaml:"end"`
}

// Transcript is a transcription result.
type Transcript struct {
	Provider  string       `json:"provider,omitempty" yaml:"provider"`
	Text      string       `json:"text,omitempty" yaml:"text"`
	Segments  []RawSegment `json:"segments" yaml:"segments"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"` // real-world time of the recording
	Timezone  string       `json:"timezone,omitempty" yaml:"timezone"`
}

// Utterance is a normalized, speaker-canonicalized stretch of speech.
type Utterance struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"` // "Speaker 1", "Speaker 2", ... in order of first appearance
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// DroppedSegment reports a malformed input segment skipped by the normalizer.
type DroppedSegment struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// NormalizedTranscript is the normalizer's output.
type NormalizedTranscript struct {
	Utterances []Utterance      `json:"utterances"`
	Dropped    []DroppedSegment `json:"dropped,omitempty"`
}

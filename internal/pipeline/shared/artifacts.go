package shared

import (
	"encoding/json"
	"fmt"

	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// Segment is one kept time range of the recording, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SegmentsDoc is the segments.json artifact: the speech ranges the silence
// stage decided to keep, the raw silences they were derived from, and the
// detection parameters, written before any encoding so a failed encode
// still leaves the cut plan inspectable.
type SegmentsDoc struct {
	Segments         []Segment `json:"segments"`
	Silences         []Segment `json:"silences"`
	OriginalDuration float64   `json:"original_duration"`
	KeptDuration     float64   `json:"kept_duration"`
	ReductionPct     float64   `json:"reduction_pct"`
	ThresholdDB      float64   `json:"threshold_db"`
	MinSilence       float64   `json:"min_silence"`
	Padding          float64   `json:"padding"`
}

// ReadJSON reads and decodes a JSON artifact from the project directory.
func ReadJSON(sandbox *storage.Sandbox, name string, out any) error {
	data, err := sandbox.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// UnmarshalModelJSON parses a language model answer as JSON, tolerating a
// surrounding markdown code fence.
func UnmarshalModelJSON(answer string, out any) error {
	return json.Unmarshal([]byte(llm.StripCodeFences(answer)), out)
}

// WriteJSON atomically writes a JSON artifact into the project directory.
func WriteJSON(sandbox *storage.Sandbox, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return sandbox.AtomicWrite(name, data)
}

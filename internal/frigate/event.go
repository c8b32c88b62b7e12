package frigate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Media kinds served per event by the remote server.
const (
	MediaThumbnail = "thumbnail.jpg"
	MediaSnapshot  = "snapshot.jpg"
	MediaClip      = "clip.mp4"
)

// Event is the canonical record for one detection episode, reconstructed on
// every fetch cycle. The ID is an opaque token (the server formats it as
// "<epoch>.<sequence>-<camera>" but nothing here depends on that).
type Event struct {
	ID                 string           `json:"id"`
	Camera             string           `json:"camera"`
	Label              string           `json:"label"`
	StartTime          float64          `json:"start_time"`
	EndTime            *float64         `json:"end_time"`
	HasClip            bool             `json:"has_clip"`
	HasSnapshot        bool             `json:"has_snapshot"`
	Zones              []string         `json:"zones"`
	RetainIndefinitely bool             `json:"retain_indefinitely"`
	Box                []float64        `json:"box,omitempty"`
	FalsePositive      *bool            `json:"false_positive,omitempty"`
	PlusID             *string          `json:"plus_id,omitempty"`
	SubLabel           *string          `json:"sub_label,omitempty"`
	TopScore           *float64         `json:"top_score,omitempty"`
	Detection          *DetectionDetail `json:"data,omitempty"`
}

// DetectionDetail is the nested detection block newer servers attach under
// "data". It is all-or-nothing: a partially populated block is dropped.
type DetectionDetail struct {
	Attributes []string  `json:"attributes"`
	Box        []float64 `json:"box"`
	Region     []float64 `json:"region"`
	Score      float64   `json:"score"`
	TopScore   float64   `json:"top_score"`
	Type       string    `json:"type"`
}

// InProgress reports whether the server has not yet closed the episode.
func (e *Event) InProgress() bool {
	return e.EndTime == nil
}

// Duration returns end-start in seconds. ok is false while the event is
// still open; callers wanting a live duration use DurationAt.
func (e *Event) Duration() (float64, bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return *e.EndTime - e.StartTime, true
}

// DurationAt returns the duration as of now, using now-start for open
// events. Recomputed on each call, never stored.
func (e *Event) DurationAt(now time.Time) float64 {
	if e.EndTime != nil {
		return *e.EndTime - e.StartTime
	}
	return float64(now.UnixNano())/float64(time.Second) - e.StartTime
}

// MediaURL builds the retrieval URL for one of the event's media assets.
func (e *Event) MediaURL(base, kind string) string {
	return fmt.Sprintf("%s/api/events/%s/%s", strings.TrimRight(base, "/"), e.ID, kind)
}

// eventWire mirrors Event with pointer fields so a strict decode can tell
// missing/null from zero values.
type eventWire struct {
	ID                 *string         `json:"id"`
	Camera             *string         `json:"camera"`
	Label              *string         `json:"label"`
	StartTime          *float64        `json:"start_time"`
	EndTime            *float64        `json:"end_time"`
	HasClip            *bool           `json:"has_clip"`
	HasSnapshot        *bool           `json:"has_snapshot"`
	Zones              *[]string       `json:"zones"`
	RetainIndefinitely *bool           `json:"retain_indefinitely"`
	Box                []float64       `json:"box"`
	FalsePositive      *bool           `json:"false_positive"`
	PlusID             *string         `json:"plus_id"`
	SubLabel           *string         `json:"sub_label"`
	TopScore           *float64        `json:"top_score"`
	Data               json.RawMessage `json:"data"`
}

type detectionWire struct {
	Attributes *[]string  `json:"attributes"`
	Box        *[]float64 `json:"box"`
	Region     *[]float64 `json:"region"`
	Score      *float64   `json:"score"`
	TopScore   *float64   `json:"top_score"`
	Type       *string    `json:"type"`
}

// UnmarshalJSON enforces the mandatory field set. A record missing any of
// id/camera/label/start_time/has_clip/has_snapshot/zones/retain_indefinitely
// fails the decode, which in a whole-array decode fails the batch and pushes
// the normalizer to its next strategy.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return fmt.Errorf("event: missing id")
	case w.Camera == nil:
		return fmt.Errorf("event %s: missing camera", *w.ID)
	case w.Label == nil:
		return fmt.Errorf("event %s: missing label", *w.ID)
	case w.StartTime == nil:
		return fmt.Errorf("event %s: missing start_time", *w.ID)
	case w.HasClip == nil:
		return fmt.Errorf("event %s: missing has_clip", *w.ID)
	case w.HasSnapshot == nil:
		return fmt.Errorf("event %s: missing has_snapshot", *w.ID)
	case w.Zones == nil:
		return fmt.Errorf("event %s: missing zones", *w.ID)
	case w.RetainIndefinitely == nil:
		return fmt.Errorf("event %s: missing retain_indefinitely", *w.ID)
	}

	e.ID = *w.ID
	e.Camera = *w.Camera
	e.Label = *w.Label
	e.StartTime = *w.StartTime
	e.EndTime = w.EndTime
	e.HasClip = *w.HasClip
	e.HasSnapshot = *w.HasSnapshot
	e.Zones = *w.Zones
	if e.Zones == nil {
		e.Zones = []string{}
	}
	e.RetainIndefinitely = *w.RetainIndefinitely
	if len(w.Box) == 4 {
		e.Box = w.Box
	}
	e.FalsePositive = w.FalsePositive
	e.PlusID = w.PlusID
	e.SubLabel = w.SubLabel
	e.TopScore = w.TopScore
	e.Detection = decodeDetection(w.Data)
	return nil
}

// decodeDetection returns nil unless every detection field is present and
// well formed.
func decodeDetection(raw json.RawMessage) *DetectionDetail {
	if len(raw) == 0 {
		return nil
	}
	var w detectionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	if w.Attributes == nil || w.Box == nil || w.Region == nil || w.Score == nil || w.TopScore == nil || w.Type == nil {
		return nil
	}
	if len(*w.Box) != 4 || len(*w.Region) != 4 {
		return nil
	}
	attrs := *w.Attributes
	if attrs == nil {
		attrs = []string{}
	}
	return &DetectionDetail{
		Attributes: attrs,
		Box:        *w.Box,
		Region:     *w.Region,
		Score:      *w.Score,
		TopScore:   *w.TopScore,
		Type:       *w.Type,
	}
}

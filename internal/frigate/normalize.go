package frigate

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/antonholmquist/jason"

	"github.com/technosupport/ts-eventfeed/internal/metrics"
)

// The event feed is not contractually stable across server versions: some
// tiers return a bare array, some wrap it in an object, and field shapes
// drifted around 0.12. Normalization is an ordered list of candidate
// strategies per version tier, applied until one succeeds.

type strategy struct {
	name string
	fn   func(body []byte) ([]Event, error)
}

// Normalize converts a raw response body into canonical events using the
// strategy chain for the given version tier. It fails only when every
// strategy in the chain is exhausted; callers then retry the request and
// run NormalizeFallback on the fresh body.
func Normalize(body []byte, v Version) ([]Event, error) {
	return runStrategies(body, strategiesFor(v))
}

// NormalizeFallback is the version-independent last line: the same chain is
// tried regardless of what the resolver thinks the server speaks.
func NormalizeFallback(body []byte) ([]Event, error) {
	return runStrategies(body, []strategy{
		{"direct_array", decodeArray},
		{"wrapped_modern", wrappedObject([]string{"events", "data", "results"}, extractModern)},
		{"legacy_array", bareArray(extractLegacy)},
	})
}

func strategiesFor(v Version) []strategy {
	switch {
	case v.AtLeast(0, 16):
		return []strategy{
			{"direct_array", decodeArray},
			{"wrapped_modern", wrappedObject([]string{"events", "data", "results"}, extractModern)},
			{"legacy_array", bareArray(extractLegacy)},
		}
	case v.AtLeast(0, 15):
		return []strategy{
			{"direct_array", decodeArray},
			{"wrapped_events", wrappedObject([]string{"events"}, extractModern)},
		}
	case v.AtLeast(0, 13):
		return []strategy{
			{"direct_array", decodeArray},
		}
	case v.AtLeast(0, 12):
		return []strategy{
			{"direct_array", decodeArray},
			{"legacy_array", bareArray(extractLegacy)},
		}
	default:
		// Pre-0.12 and anything unrecognized: legacy first, strict array
		// as a last resort.
		return []strategy{
			{"legacy_array", bareArray(extractLegacy)},
			{"direct_array", decodeArray},
		}
	}
}

func runStrategies(body []byte, chain []strategy) ([]Event, error) {
	var lastErr error
	for _, s := range chain {
		events, err := s.fn(body)
		if err == nil {
			metrics.NormalizeTotal.WithLabelValues(s.name, "success").Inc()
			return events, nil
		}
		metrics.NormalizeTotal.WithLabelValues(s.name, "fail").Inc()
		lastErr = err
	}
	return nil, &DecodingError{ByteLen: len(body), Err: lastErr}
}

// decodeArray is the strict whole-array decode. One malformed record fails
// the entire batch (Event.UnmarshalJSON enforces the mandatory fields),
// which is what pushes mixed batches down to the element-wise strategies.
func decodeArray(body []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// wrappedObject probes a generic object for the first known wrapper key and
// extracts its elements one by one, skipping malformed records.
func wrappedObject(keys []string, extract func(*jason.Object) (Event, error)) func([]byte) ([]Event, error) {
	return func(body []byte) ([]Event, error) {
		obj, err := jason.NewObjectFromBytes(body)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			arr, err := obj.GetObjectArray(key)
			if err != nil {
				continue
			}
			return extractAll(arr, extract), nil
		}
		return nil, fmt.Errorf("no known wrapper key in object (tried %v)", keys)
	}
}

// bareArray parses a top-level array of generic objects and extracts each
// element, skipping malformed records.
func bareArray(extract func(*jason.Object) (Event, error)) func([]byte) ([]Event, error) {
	return func(body []byte) ([]Event, error) {
		val, err := jason.NewValueFromBytes(body)
		if err != nil {
			return nil, err
		}
		values, err := val.Array()
		if err != nil {
			return nil, err
		}
		events := make([]Event, 0, len(values))
		for i, v := range values {
			obj, err := v.Object()
			if err != nil {
				log.Printf("[DEBUG] Normalizer: element %d is not an object, skipping: %v", i, err)
				continue
			}
			evt, err := extract(obj)
			if err != nil {
				log.Printf("[DEBUG] Normalizer: skipping record %d: %v", i, err)
				continue
			}
			events = append(events, evt)
		}
		return events, nil
	}
}

func extractAll(objs []*jason.Object, extract func(*jason.Object) (Event, error)) []Event {
	events := make([]Event, 0, len(objs))
	for i, obj := range objs {
		evt, err := extract(obj)
		if err != nil {
			log.Printf("[DEBUG] Normalizer: skipping record %d: %v", i, err)
			continue
		}
		events = append(events, evt)
	}
	return events
}

// extractMandatory pulls the fields every schema variant must carry. Any
// missing or mistyped one fails the record.
func extractMandatory(obj *jason.Object) (Event, error) {
	var evt Event
	var err error

	if evt.ID, err = obj.GetString("id"); err != nil {
		return evt, fmt.Errorf("id: %w", err)
	}
	if evt.Camera, err = obj.GetString("camera"); err != nil {
		return evt, fmt.Errorf("camera: %w", err)
	}
	if evt.Label, err = obj.GetString("label"); err != nil {
		return evt, fmt.Errorf("label: %w", err)
	}
	if evt.StartTime, err = obj.GetFloat64("start_time"); err != nil {
		return evt, fmt.Errorf("start_time: %w", err)
	}
	if evt.HasClip, err = obj.GetBoolean("has_clip"); err != nil {
		return evt, fmt.Errorf("has_clip: %w", err)
	}
	if evt.HasSnapshot, err = obj.GetBoolean("has_snapshot"); err != nil {
		return evt, fmt.Errorf("has_snapshot: %w", err)
	}
	if evt.Zones, err = obj.GetStringArray("zones"); err != nil {
		return evt, fmt.Errorf("zones: %w", err)
	}
	if evt.Zones == nil {
		evt.Zones = []string{}
	}
	if evt.RetainIndefinitely, err = obj.GetBoolean("retain_indefinitely"); err != nil {
		return evt, fmt.Errorf("retain_indefinitely: %w", err)
	}
	return evt, nil
}

// extractOptional fills the fields shared by every tier, defaulting each to
// absent when missing or malformed.
func extractOptional(evt *Event, obj *jason.Object) {
	if v, err := obj.GetFloat64("end_time"); err == nil {
		evt.EndTime = &v
	}
	if box, err := obj.GetFloat64Array("box"); err == nil && len(box) == 4 {
		evt.Box = box
	}
	if v, err := obj.GetBoolean("false_positive"); err == nil {
		evt.FalsePositive = &v
	}
	if v, err := obj.GetString("plus_id"); err == nil {
		evt.PlusID = &v
	}
	if v, err := obj.GetString("sub_label"); err == nil {
		evt.SubLabel = &v
	}
	if v, err := obj.GetFloat64("top_score"); err == nil {
		evt.TopScore = &v
	}
}

// extractModern handles post-0.14 records, which may carry the nested
// detection block under "data".
func extractModern(obj *jason.Object) (Event, error) {
	evt, err := extractMandatory(obj)
	if err != nil {
		return evt, err
	}
	extractOptional(&evt, obj)
	if data, err := obj.GetObject("data"); err == nil {
		evt.Detection = extractDetection(data)
	}
	return evt, nil
}

// extractLegacy handles pre-0.13 records. Same mandatory surface, no
// nested detection block.
func extractLegacy(obj *jason.Object) (Event, error) {
	evt, err := extractMandatory(obj)
	if err != nil {
		return evt, err
	}
	extractOptional(&evt, obj)
	return evt, nil
}

// extractDetection is all-or-nothing: a block missing any field is treated
// as absent rather than partially populated.
func extractDetection(obj *jason.Object) *DetectionDetail {
	attrs, err := obj.GetStringArray("attributes")
	if err != nil {
		return nil
	}
	box, err := obj.GetFloat64Array("box")
	if err != nil || len(box) != 4 {
		return nil
	}
	region, err := obj.GetFloat64Array("region")
	if err != nil || len(region) != 4 {
		return nil
	}
	score, err := obj.GetFloat64("score")
	if err != nil {
		return nil
	}
	topScore, err := obj.GetFloat64("top_score")
	if err != nil {
		return nil
	}
	typ, err := obj.GetString("type")
	if err != nil {
		return nil
	}
	if attrs == nil {
		attrs = []string{}
	}
	return &DetectionDetail{
		Attributes: attrs,
		Box:        box,
		Region:     region,
		Score:      score,
		TopScore:   topScore,
		Type:       typ,
	}
}

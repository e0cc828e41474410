package asset

import "fmt"

// Source describes the uploaded file an asset was derived from.
type Source struct {
	Filename        string  `json:"filename"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Segment is one stream-copied chunk of a variant. Indices are 1-based and
// contiguous; only the last segment may be shorter than the asset's
// segment duration.
type Segment struct {
	Index           int     `json:"index"`
	Label           string  `json:"label"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"durationSeconds"`
	SizeBytes       int64   `json:"sizeBytes"`
}

// Variant is one resolution rendition of an asset. It always offers both a
// full-file playback source and a complete segment sequence.
type Variant struct {
	Key         string    `json:"key"`
	Height      int       `json:"height"`
	Width       int       `json:"width"`
	Label       string    `json:"label"`
	IsMaster    bool      `json:"isMaster"`
	BitrateKbps *float64  `json:"bitrateKbps"`
	File        string    `json:"file"`
	Segments    []Segment `json:"segments"`
}

// SkippedResolution records a requested height that was not honored.
type SkippedResolution struct {
	Height int    `json:"height"`
	Reason string `json:"reason"`
}

// Manifest is the serialized projection of an asset consumed by playback.
// It is the only contract between the pipeline and the client.
type Manifest struct {
	ID                   string              `json:"id"`
	Source               Source              `json:"source"`
	SegmentDuration      float64             `json:"segmentDuration"`
	RequestedResolutions []int               `json:"requestedResolutions"`
	SkippedResolutions   []SkippedResolution `json:"skippedResolutions"`
	CreatedAt            string              `json:"createdAt"`
	CreatedAtEpoch       float64             `json:"createdAtEpoch"`
	Variants             []Variant           `json:"variants"`
}

// DurationSeconds is the variant duration as covered by its segments.
func (v *Variant) DurationSeconds() float64 {
	var total float64
	for _, s := range v.Segments {
		total += s.DurationSeconds
	}
	return total
}

// SegmentByIndex returns the segment with the given 1-based index.
func (v *Variant) SegmentByIndex(index int) (*Segment, bool) {
	for i := range v.Segments {
		if v.Segments[i].Index == index {
			return &v.Segments[i], true
		}
	}
	return nil, false
}

// DefaultVariant picks the master variant, or the first one if no variant
// carries the master flag.
func (m *Manifest) DefaultVariant() (*Variant, bool) {
	if len(m.Variants) == 0 {
		return nil, false
	}
	for i := range m.Variants {
		if m.Variants[i].IsMaster {
			return &m.Variants[i], true
		}
	}
	return &m.Variants[0], true
}

// VariantByKey returns the variant with the given key.
func (m *Manifest) VariantByKey(key string) (*Variant, bool) {
	for i := range m.Variants {
		if m.Variants[i].Key == key {
			return &m.Variants[i], true
		}
	}
	return nil, false
}

// VariantLabel builds the display label for a target height.
func VariantLabel(height int, isMaster bool) string {
	label := fmt.Sprintf("%dp", height)
	if isMaster {
		label += " (master)"
	}
	return label
}

// SegmentLabel builds the display label for a segment index.
func SegmentLabel(index int) string {
	return fmt.Sprintf("Segment %d", index)
}

package playback

import "vodpack/internal/asset"

// BitrateEntry maps heights at or above MinHeight to a nominal bitrate.
type BitrateEntry struct {
	MinHeight int
	Kbps      float64
}

// BitrateTable is an ordered height to bitrate lookup, highest first.
type BitrateTable []BitrateEntry

// DefaultBitrateTable holds nominal H.264 bitrates per rung.
var DefaultBitrateTable = BitrateTable{
	{MinHeight: 2160, Kbps: 14000},
	{MinHeight: 1440, Kbps: 9000},
	{MinHeight: 1080, Kbps: 6000},
	{MinHeight: 720, Kbps: 3500},
	{MinHeight: 480, Kbps: 1800},
	{MinHeight: 360, Kbps: 1000},
}

// fixed mid-tier estimate for unknown or unmappable heights; never zero,
// which would make every candidate spuriously better
const fallbackKbps = 2500

// Resolve returns the effective bitrate for a variant: measured encoder
// output when known, else the table entry for its height, else the
// mid-tier fallback.
func (t BitrateTable) Resolve(v *asset.Variant) float64 {
	if v.BitrateKbps != nil && *v.BitrateKbps > 0 {
		return *v.BitrateKbps
	}
	for _, entry := range t {
		if v.Height >= entry.MinHeight {
			return entry.Kbps
		}
	}
	return fallbackKbps
}

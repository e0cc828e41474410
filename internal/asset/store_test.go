package asset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testManifest(id string, epoch float64) *Manifest {
	bitrate := 3421.52
	return &Manifest{
		ID: id,
		Source: Source{
			Filename:        "holiday.mp4",
			Width:           1280,
			Height:          720,
			DurationSeconds: 65.2,
		},
		SegmentDuration:      30,
		RequestedResolutions: []int{1080, 480},
		SkippedResolutions:   []SkippedResolution{{Height: 1080, Reason: "upscale not permitted"}},
		CreatedAt:            "2024-03-07T15:04:05Z",
		CreatedAtEpoch:       epoch,
		Variants: []Variant{
			{
				Key:         "720",
				Height:      720,
				Width:       1280,
				Label:       "720p (master)",
				IsMaster:    true,
				BitrateKbps: &bitrate,
				File:        id + "/variants/720p/holiday_720p.mp4",
				Segments: []Segment{
					{Index: 1, Label: "Segment 1", URL: id + "/segments/720p/holiday_720p_part_000.mp4", DurationSeconds: 30, SizeBytes: 1000},
					{Index: 2, Label: "Segment 2", URL: id + "/segments/720p/holiday_720p_part_001.mp4", DurationSeconds: 30, SizeBytes: 900},
					{Index: 3, Label: "Segment 3", URL: id + "/segments/720p/holiday_720p_part_002.mp4", DurationSeconds: 5.2, SizeBytes: 200},
				},
			},
			{
				Key:    "480",
				Height: 480,
				Width:  854,
				Label:  "480p",
				File:   id + "/variants/480p/holiday_480p.mp4",
				Segments: []Segment{
					{Index: 1, Label: "Segment 1", URL: id + "/segments/480p/holiday_480p_part_000.mp4", DurationSeconds: 30, SizeBytes: 500},
					{Index: 2, Label: "Segment 2", URL: id + "/segments/480p/holiday_480p_part_001.mp4", DurationSeconds: 30, SizeBytes: 450},
					{Index: 3, Label: "Segment 3", URL: id + "/segments/480p/holiday_480p_part_002.mp4", DurationSeconds: 5.2, SizeBytes: 100},
				},
			},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	manifest := testManifest("holiday-20240307150405", 1709823845.123)
	require.NoError(t, os.MkdirAll(store.Dir(manifest.ID), 0755))
	require.NoError(t, store.Write(manifest))

	loaded, err := store.Load(manifest.ID)
	require.NoError(t, err)
	require.Equal(t, manifest, loaded, "manifest must round-trip with no field loss")
}

func TestStoreWriteOnce(t *testing.T) {
	store := NewStore(t.TempDir())

	manifest := testManifest("holiday-20240307150405", 1)
	require.NoError(t, os.MkdirAll(store.Dir(manifest.ID), 0755))
	require.NoError(t, store.Write(manifest))

	err := store.Write(manifest)
	require.Error(t, err, "second write for the same id must fail")

	writeErr := &ManifestWriteError{}
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, manifest.ID, writeErr.ID)
}

func TestStoreLoadRejectsBadID(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("../outside")
	require.Error(t, err)
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, m := range []*Manifest{
		testManifest("older-20240101000000", 100),
		testManifest("newest-20240301000000", 300),
		testManifest("middle-20240201000000", 200),
	} {
		require.NoError(t, os.MkdirAll(store.Dir(m.ID), 0755))
		require.NoError(t, store.Write(m))
	}

	listings := store.List()
	require.Len(t, listings, 3)
	require.Equal(t, "newest-20240301000000", listings[0].ID)
	require.Equal(t, "middle-20240201000000", listings[1].ID)
	require.Equal(t, "older-20240101000000", listings[2].ID)

	require.Equal(t, "holiday.mp4", listings[0].Title)
	require.Equal(t, []string{"720p", "480p"}, listings[0].Resolutions)
}

func TestStoreListMissingRootIsEmptyNotNil(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))

	listings := store.List()
	require.NotNil(t, listings, "catalog must encode as an empty list")
	require.Empty(t, listings)
}

func TestStoreListSkipsBrokenManifests(t *testing.T) {
	store := NewStore(t.TempDir())

	manifest := testManifest("good-20240307150405", 1)
	require.NoError(t, os.MkdirAll(store.Dir(manifest.ID), 0755))
	require.NoError(t, store.Write(manifest))

	brokenDir := store.Dir("broken-20240307150406")
	require.NoError(t, os.MkdirAll(brokenDir, 0755))
	require.NoError(t, os.WriteFile(brokenDir+"/manifest.json", []byte("{not json"), 0644))

	listings := store.List()
	require.Len(t, listings, 1)
	require.Equal(t, manifest.ID, listings[0].ID)
}

func TestStoreRemove(t *testing.T) {
	store := NewStore(t.TempDir())

	manifest := testManifest("gone-20240307150405", 1)
	require.NoError(t, os.MkdirAll(store.Dir(manifest.ID), 0755))
	require.NoError(t, store.Write(manifest))

	require.NoError(t, store.Remove(manifest.ID))

	_, err := store.Load(manifest.ID)
	require.Error(t, err)
	require.Empty(t, store.List())
}

func TestDefaultVariant(t *testing.T) {
	manifest := testManifest("x-20240307150405", 1)

	variant, ok := manifest.DefaultVariant()
	require.True(t, ok)
	require.Equal(t, "720", variant.Key, "master flag wins")

	manifest.Variants[0].IsMaster = false
	variant, ok = manifest.DefaultVariant()
	require.True(t, ok)
	require.Equal(t, "720", variant.Key, "first variant is the fallback")

	empty := &Manifest{}
	_, ok = empty.DefaultVariant()
	require.False(t, ok)
}

func TestVariantDuration(t *testing.T) {
	manifest := testManifest("x-20240307150405", 1)
	require.InDelta(t, 65.2, manifest.Variants[0].DurationSeconds(), 1e-9)
}

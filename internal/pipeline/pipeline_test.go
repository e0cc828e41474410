package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vodpack/internal/asset"
	"vodpack/internal/media"
)

// fakeTools simulates the external ffmpeg/ffprobe capabilities with
// plain files, so pipeline semantics are testable without the tools.
type fakeTools struct {
	source media.SourceInfo

	transcodeCalls int
	failTranscode  int // 1-based call number to fail on, 0 = never

	variants map[string]*media.SourceInfo
}

func newFakeTools(width, height int, duration float64) *fakeTools {
	return &fakeTools{
		source:   media.SourceInfo{Width: width, Height: height, DurationSeconds: duration},
		variants: map[string]*media.SourceInfo{},
	}
}

func (f *fakeTools) Probe(ctx context.Context, path string) (*media.SourceInfo, error) {
	if info, ok := f.variants[path]; ok {
		return info, nil
	}
	return &f.source, nil
}

func (f *fakeTools) Transcode(ctx context.Context, req media.TranscodeRequest) error {
	f.transcodeCalls++
	if f.failTranscode != 0 && f.transcodeCalls == f.failTranscode {
		return &media.TranscodeError{Height: req.TargetHeight, Stderr: "conversion failed", Err: errors.New("exit status 1")}
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return err
	}
	// file size scales with height so measured bitrates differ per variant
	payload := bytes.Repeat([]byte{0xff}, req.TargetHeight*100)
	if err := os.WriteFile(req.OutputPath, payload, 0644); err != nil {
		return err
	}

	f.variants[req.OutputPath] = &media.SourceInfo{
		Width:           media.ScaledWidth(f.source.Width, f.source.Height, req.TargetHeight),
		Height:          req.TargetHeight,
		DurationSeconds: f.source.DurationSeconds,
	}
	return nil
}

func (f *fakeTools) Segment(ctx context.Context, variantPath, destDir string, segmentDuration int) ([]media.Chunk, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}

	count := int(math.Ceil(f.source.DurationSeconds / float64(segmentDuration)))
	stem := strings.TrimSuffix(filepath.Base(variantPath), filepath.Ext(variantPath))

	chunks := make([]media.Chunk, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(destDir, fmt.Sprintf("%s_part_%03d.mp4", stem, i))
		payload := bytes.Repeat([]byte{0xaa}, 100+i)
		if err := os.WriteFile(path, payload, 0644); err != nil {
			return nil, err
		}
		chunks = append(chunks, media.Chunk{Index: i + 1, Path: path, SizeBytes: int64(len(payload))})
	}
	return chunks, nil
}

func TestPlanTargets(t *testing.T) {
	cases := []struct {
		name         string
		requested    []int
		sourceHeight int
		wantTargets  []int
		wantSkipped  []int
	}{
		{"native always first", []int{480, 1080}, 720, []int{720, 480}, []int{1080}},
		{"native requested", []int{720, 480}, 720, []int{720, 480}, nil},
		{"all upscales", []int{2160, 1440}, 1080, []int{1080}, []int{2160, 1440}},
		{"duplicates collapse", []int{480, 480, 360}, 720, []int{720, 480, 360}, nil},
		{"descending order", []int{360, 1080, 480, 720}, 1080, []int{1080, 720, 480, 360}, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			targets, skipped := planTargets(c.requested, c.sourceHeight)
			require.Equal(t, c.wantTargets, targets)

			var skippedHeights []int
			for _, s := range skipped {
				require.Equal(t, SkipReasonUpscale, s.Reason)
				skippedHeights = append(skippedHeights, s.Height)
			}
			require.Equal(t, c.wantSkipped, skippedHeights)
		})
	}
}

func TestSegmentDurations(t *testing.T) {
	t.Run("last segment covers the remainder", func(t *testing.T) {
		durations := segmentDurations(65.2, 30, 3)
		require.Len(t, durations, 3)
		require.Equal(t, 30.0, durations[0])
		require.Equal(t, 30.0, durations[1])
		require.InDelta(t, 5.2, durations[2], 1e-9)
	})

	t.Run("exact multiple keeps full durations", func(t *testing.T) {
		durations := segmentDurations(90, 30, 3)
		require.Equal(t, []float64{30, 30, 30}, durations)
	})

	t.Run("sum matches the variant duration within rounding", func(t *testing.T) {
		for _, total := range []float64{1, 29.97, 30, 31.5, 65.2, 600.4} {
			count := int(math.Ceil(total / 30))
			durations := segmentDurations(total, 30, count)

			var sum float64
			for _, d := range durations {
				sum += d
			}
			require.InDelta(t, total, sum, 1e-6, "total %f", total)
			require.Len(t, durations, count)
		}
	})
}

func TestClampSegmentDuration(t *testing.T) {
	require.Equal(t, 5, clampSegmentDuration(1))
	require.Equal(t, 30, clampSegmentDuration(30))
	require.Equal(t, 600, clampSegmentDuration(9000))
}

func TestProcessEndToEnd(t *testing.T) {
	store := asset.NewStore(t.TempDir())
	tools := newFakeTools(1280, 720, 65.2)
	manager := New(store, tools)

	manifest, err := manager.Process(context.Background(), Request{
		Source:          strings.NewReader("not a real video"),
		Filename:        "holiday.mp4",
		Resolutions:     []int{1080, 480},
		SegmentDuration: 30,
	})
	require.NoError(t, err)

	// 1080 is above the 720 source and must be skipped with a reason
	require.Equal(t, []asset.SkippedResolution{{Height: 1080, Reason: SkipReasonUpscale}}, manifest.SkippedResolutions)
	require.Equal(t, []int{1080, 480}, manifest.RequestedResolutions)

	// native 720 and requested 480 are produced, 720 is the master
	require.Len(t, manifest.Variants, 2)
	require.Equal(t, "720", manifest.Variants[0].Key)
	require.True(t, manifest.Variants[0].IsMaster)
	require.Equal(t, "720p (master)", manifest.Variants[0].Label)
	require.Equal(t, "480", manifest.Variants[1].Key)
	require.False(t, manifest.Variants[1].IsMaster)

	for _, variant := range manifest.Variants {
		require.Equal(t, 0, variant.Width%2, "variant width must be even")
		require.Len(t, variant.Segments, 3)

		for i, segment := range variant.Segments {
			require.Equal(t, i+1, segment.Index, "indices must be contiguous from 1")
			require.NotEmpty(t, segment.URL)
			require.Positive(t, segment.SizeBytes)
		}

		// all segments nominal except the shorter final one
		require.Equal(t, 30.0, variant.Segments[0].DurationSeconds)
		require.Equal(t, 30.0, variant.Segments[1].DurationSeconds)
		require.Less(t, variant.Segments[2].DurationSeconds, 30.0)
		require.InDelta(t, 65.2, variant.DurationSeconds(), 0.001)

		require.NotNil(t, variant.BitrateKbps)
		require.Positive(t, *variant.BitrateKbps)
	}

	// the manifest must round-trip through the store with no field loss
	loaded, err := store.Load(manifest.ID)
	require.NoError(t, err)
	require.Equal(t, manifest, loaded)
}

func TestProcessDeduplicatesRequestedResolutions(t *testing.T) {
	store := asset.NewStore(t.TempDir())
	tools := newFakeTools(1280, 720, 65.2)
	manager := New(store, tools)

	manifest, err := manager.Process(context.Background(), Request{
		Source:          strings.NewReader("not a real video"),
		Filename:        "holiday.mp4",
		Resolutions:     []int{480, 1080, 480, 480},
		SegmentDuration: 30,
	})
	require.NoError(t, err)

	require.Equal(t, []int{1080, 480}, manifest.RequestedResolutions)
	require.Equal(t, []asset.SkippedResolution{{Height: 1080, Reason: SkipReasonUpscale}}, manifest.SkippedResolutions)
	require.Len(t, manifest.Variants, 2)
}

func TestProcessRollbackLeavesNothingVisible(t *testing.T) {
	root := t.TempDir()
	store := asset.NewStore(root)

	// source at 1080 with three accepted targets, second transcode fails
	tools := newFakeTools(1920, 1080, 120)
	tools.failTranscode = 2
	manager := New(store, tools)

	_, err := manager.Process(context.Background(), Request{
		Source:          strings.NewReader("not a real video"),
		Filename:        "broken.mp4",
		Resolutions:     []int{1080, 720, 480},
		SegmentDuration: 30,
	})
	require.Error(t, err)

	transcodeErr := &media.TranscodeError{}
	require.ErrorAs(t, err, &transcodeErr)

	// no partial asset may be visible to the manifest reader
	require.Empty(t, store.List())

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	require.Empty(t, entries, "asset directory must be rolled back")
}

func TestProcessProbeFailure(t *testing.T) {
	root := t.TempDir()
	store := asset.NewStore(root)

	manager := New(store, probeFailTools{})

	_, err := manager.Process(context.Background(), Request{
		Source:          strings.NewReader("garbage"),
		Filename:        "garbage.mp4",
		Resolutions:     []int{480},
		SegmentDuration: 30,
	})
	require.Error(t, err)

	probeErr := &media.ProbeError{}
	require.ErrorAs(t, err, &probeErr)

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

type probeFailTools struct{}

func (probeFailTools) Probe(ctx context.Context, path string) (*media.SourceInfo, error) {
	return nil, &media.ProbeError{Path: path, Err: errors.New("invalid data found when processing input")}
}

func (probeFailTools) Transcode(ctx context.Context, req media.TranscodeRequest) error {
	return errors.New("unreachable")
}

func (probeFailTools) Segment(ctx context.Context, variantPath, destDir string, segmentDuration int) ([]media.Chunk, error) {
	return nil, errors.New("unreachable")
}

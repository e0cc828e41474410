package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"vodpack/internal/asset"
	"vodpack/internal/media"
	"vodpack/internal/metrics"
)

// SkipReasonUpscale is recorded for requested heights above the source.
const SkipReasonUpscale = "upscale not permitted"

// segment duration bounds in seconds
const (
	MinSegmentDuration = 5
	MaxSegmentDuration = 600
)

// Prober inspects a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.SourceInfo, error)
}

// Transcoder produces one rendition of a source file.
type Transcoder interface {
	Transcode(ctx context.Context, req media.TranscodeRequest) error
}

// Segmenter splits a rendition into fixed-duration chunks.
type Segmenter interface {
	Segment(ctx context.Context, variantPath, destDir string, segmentDuration int) ([]media.Chunk, error)
}

// Tools bundles the external processing capabilities.
type Tools interface {
	Prober
	Transcoder
	Segmenter
}

// Request is one upload to process.
type Request struct {
	Source          io.Reader
	Filename        string // sanitized original filename
	Resolutions     []int  // requested target heights
	SegmentDuration int    // seconds, clamped to [5, 600]
}

// ManagerCtx runs the sequential probe, transcode, segment, manifest
// batch job per upload. The whole pipeline runs to completion or rolls
// back before any partial result becomes visible.
type ManagerCtx struct {
	logger zerolog.Logger
	store  *asset.StoreCtx
	tools  Tools

	now func() time.Time
}

func New(store *asset.StoreCtx, tools Tools) *ManagerCtx {
	return &ManagerCtx{
		logger: log.With().Str("module", "pipeline").Logger(),
		store:  store,
		tools:  tools,
		now:    time.Now,
	}
}

// planTargets decides which heights get transcoded. The native height is
// always produced; requested heights below it follow in descending
// order; requested heights above it are skipped.
func planTargets(requested []int, sourceHeight int) (targets []int, skipped []asset.SkippedResolution) {
	seen := map[int]bool{}
	unique := []int{}
	for _, height := range requested {
		if height > 0 && !seen[height] {
			seen[height] = true
			unique = append(unique, height)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(unique)))

	targets = []int{sourceHeight}
	for _, height := range unique {
		if height > sourceHeight {
			skipped = append(skipped, asset.SkippedResolution{Height: height, Reason: SkipReasonUpscale})
		} else if height < sourceHeight {
			targets = append(targets, height)
		}
	}
	return targets, skipped
}

// segmentDurations distributes the variant duration over chunk slots:
// every chunk gets the configured duration except the last, which covers
// the remainder.
func segmentDurations(totalSeconds float64, segmentDuration int, count int) []float64 {
	durations := make([]float64, count)
	for i := 0; i < count; i++ {
		durations[i] = float64(segmentDuration)
	}
	if count > 0 {
		last := totalSeconds - float64(segmentDuration)*float64(count-1)
		if last > 0 && last < float64(segmentDuration) {
			durations[count-1] = last
		}
	}
	return durations
}

func clampSegmentDuration(seconds int) int {
	if seconds < MinSegmentDuration {
		return MinSegmentDuration
	}
	if seconds > MaxSegmentDuration {
		return MaxSegmentDuration
	}
	return seconds
}

// Process turns one uploaded source into a committed asset. On any
// failure the in-progress asset directory is removed so no partial state
// is ever observable; retry is a caller decision.
func (m *ManagerCtx) Process(ctx context.Context, req Request) (*asset.Manifest, error) {
	start := m.now()
	segmentDuration := clampSegmentDuration(req.SegmentDuration)

	createdAt := start.UTC()
	id := asset.NewID(req.Filename, createdAt)

	manifest, err := m.process(ctx, id, createdAt, segmentDuration, req)
	if err != nil {
		if removeErr := m.store.Remove(id); removeErr != nil {
			m.logger.Err(removeErr).Str("id", id).Msg("rollback failed")
		}
		return nil, err
	}

	metrics.AssetsCommittedTotal.Inc()
	metrics.PipelineDuration.Observe(m.now().Sub(start).Seconds())

	m.logger.Info().
		Str("id", id).
		Int("variants", len(manifest.Variants)).
		Msg("asset processed")

	return manifest, nil
}

func (m *ManagerCtx) process(ctx context.Context, id string, createdAt time.Time, segmentDuration int, req Request) (*asset.Manifest, error) {
	assetDir := m.store.Dir(id)
	sourceDir := filepath.Join(assetDir, "source")
	variantsDir := filepath.Join(assetDir, "variants")
	segmentsDir := filepath.Join(assetDir, "segments")

	for _, dir := range []string{sourceDir, variantsDir, segmentsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			metrics.PipelineFailuresTotal.WithLabelValues("prepare").Inc()
			return nil, fmt.Errorf("unable to prepare asset directory: %w", err)
		}
	}

	sourcePath := filepath.Join(sourceDir, req.Filename)
	if err := saveSource(sourcePath, req.Source); err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("save").Inc()
		return nil, fmt.Errorf("unable to save source: %w", err)
	}

	sourceInfo, err := m.tools.Probe(ctx, sourcePath)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("probe").Inc()
		return nil, err
	}

	targets, skipped := planTargets(req.Resolutions, sourceInfo.Height)
	for _, skip := range skipped {
		m.logger.Info().
			Str("id", id).
			Int("height", skip.Height).
			Str("reason", skip.Reason).
			Msg("resolution skipped")
	}

	stem := asset.Slug(req.Filename)
	variants := make([]asset.Variant, 0, len(targets))

	for _, target := range targets {
		variant, err := m.processVariant(ctx, variantConfig{
			assetID:         id,
			sourcePath:      sourcePath,
			variantsDir:     variantsDir,
			segmentsDir:     segmentsDir,
			stem:            stem,
			target:          target,
			isMaster:        target == sourceInfo.Height,
			segmentDuration: segmentDuration,
		})
		if err != nil {
			return nil, err
		}
		variants = append(variants, *variant)
	}

	requested := lo.Uniq(req.Resolutions)
	sort.Sort(sort.Reverse(sort.IntSlice(requested)))
	if skipped == nil {
		skipped = []asset.SkippedResolution{}
	}

	manifest := &asset.Manifest{
		ID: id,
		Source: asset.Source{
			Filename:        req.Filename,
			Width:           sourceInfo.Width,
			Height:          sourceInfo.Height,
			DurationSeconds: sourceInfo.DurationSeconds,
		},
		SegmentDuration:      float64(segmentDuration),
		RequestedResolutions: requested,
		SkippedResolutions:   skipped,
		CreatedAt:            createdAt.Format("2006-01-02T15:04:05") + "Z",
		CreatedAtEpoch:       float64(createdAt.UnixNano()) / float64(time.Second),
		Variants:             variants,
	}

	if err := m.store.Write(manifest); err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("manifest").Inc()
		return nil, err
	}

	return manifest, nil
}

type variantConfig struct {
	assetID         string
	sourcePath      string
	variantsDir     string
	segmentsDir     string
	stem            string
	target          int
	isMaster        bool
	segmentDuration int
}

func (m *ManagerCtx) processVariant(ctx context.Context, cfg variantConfig) (*asset.Variant, error) {
	variantPath := filepath.Join(cfg.variantsDir, fmt.Sprintf("%dp", cfg.target), fmt.Sprintf("%s_%dp.mp4", cfg.stem, cfg.target))

	transcodeStart := m.now()
	err := m.tools.Transcode(ctx, media.TranscodeRequest{
		SourcePath:      cfg.sourcePath,
		OutputPath:      variantPath,
		TargetHeight:    cfg.target,
		SegmentDuration: cfg.segmentDuration,
	})
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("transcode").Inc()
		return nil, err
	}
	metrics.TranscodeDuration.WithLabelValues(strconv.Itoa(cfg.target)).Observe(m.now().Sub(transcodeStart).Seconds())

	// probe the encoder output for the resulting dimensions and duration
	info, err := m.tools.Probe(ctx, variantPath)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("probe").Inc()
		return nil, err
	}

	chunks, err := m.tools.Segment(ctx, variantPath, filepath.Join(cfg.segmentsDir, fmt.Sprintf("%dp", cfg.target)), cfg.segmentDuration)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("segment").Inc()
		return nil, err
	}
	metrics.SegmentsProducedTotal.Add(float64(len(chunks)))

	durations := segmentDurations(info.DurationSeconds, cfg.segmentDuration, len(chunks))
	segments := make([]asset.Segment, 0, len(chunks))
	for i, chunk := range chunks {
		url, err := m.relative(chunk.Path)
		if err != nil {
			return nil, err
		}
		segments = append(segments, asset.Segment{
			Index:           chunk.Index,
			Label:           asset.SegmentLabel(chunk.Index),
			URL:             url,
			DurationSeconds: durations[i],
			SizeBytes:       chunk.SizeBytes,
		})
	}

	file, err := m.relative(variantPath)
	if err != nil {
		return nil, err
	}

	variant := &asset.Variant{
		Key:      strconv.Itoa(cfg.target),
		Height:   info.Height,
		Width:    info.Width,
		Label:    asset.VariantLabel(cfg.target, cfg.isMaster),
		IsMaster: cfg.isMaster,
		File:     file,
		Segments: segments,
	}

	if kbps, ok := measuredBitrate(variantPath, info.DurationSeconds); ok {
		variant.BitrateKbps = &kbps
	}

	return variant, nil
}

// measuredBitrate derives the effective bitrate in kbps from the encoder
// output size and duration.
func measuredBitrate(path string, durationSeconds float64) (float64, bool) {
	if durationSeconds <= 0 {
		return 0, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	kbps := float64(info.Size()) * 8 / 1000 / durationSeconds
	return math.Round(kbps*100) / 100, true
}

func (m *ManagerCtx) relative(path string) (string, error) {
	rel, err := filepath.Rel(m.store.Root(), path)
	if err != nil {
		return "", fmt.Errorf("path outside media root: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func saveSource(path string, source io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, source); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

package media

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Chunk is one produced segment file, in index order.
type Chunk struct {
	Index     int
	Path      string
	SizeBytes int64
}

// Segment splits a fully transcoded variant file into numbered
// fixed-duration chunks. Streams are copied without re-encoding and
// per-chunk timestamps are reset to start at zero.
func (f *FFmpeg) Segment(ctx context.Context, variantPath, destDir string, segmentDuration int) ([]Chunk, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, &SegmentError{Path: variantPath, Err: err}
	}

	stem := strings.TrimSuffix(filepath.Base(variantPath), filepath.Ext(variantPath))
	pattern := filepath.Join(destDir, stem+"_part_%03d.mp4")

	args := []string{
		"-y",
		"-i", variantPath,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c:v", "copy",
		"-c:a", "copy",
		"-map_metadata", "-1",
		"-dn",
		"-sn",
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentDuration),
		"-reset_timestamps", "1",
		"-segment_format", "mp4",
		pattern,
	}

	f.logger.Info().
		Str("variant", variantPath).
		Int("segment-duration", segmentDuration).
		Msg("segmenting variant")

	if _, tail, err := runTool(ctx, f.logger, f.FFmpegBinary, args); err != nil {
		return nil, &SegmentError{Path: variantPath, Stderr: tail, Err: err}
	}

	return collectChunks(destDir)
}

// collectChunks lists produced chunk files in name order, which preserves
// index order thanks to the zero-padded numbering.
func collectChunks(destDir string) ([]Chunk, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, "*.mp4"))
	if err != nil {
		return nil, &SegmentError{Path: destDir, Err: err}
	}
	sort.Strings(matches)

	chunks := make([]Chunk, 0, len(matches))
	for i, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &SegmentError{Path: path, Err: err}
		}

		chunks = append(chunks, Chunk{
			Index:     i + 1,
			Path:      path,
			SizeBytes: info.Size(),
		})
	}

	return chunks, nil
}

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TranscodeRequest describes one rendition run: scale the source to the
// target height and re-encode with keyframes aligned to segment
// boundaries so segments can later be cut without re-encoding.
type TranscodeRequest struct {
	SourcePath      string
	OutputPath      string
	TargetHeight    int
	SegmentDuration int
}

// crfForHeight maps a target height to a constant rate factor. Higher
// resolutions get lower factors to keep quality acceptable.
func crfForHeight(height int) int {
	switch {
	case height >= 2160:
		return 20
	case height >= 1440:
		return 21
	case height >= 1080:
		return 22
	case height >= 720:
		return 23
	case height >= 480:
		return 24
	default:
		return 25
	}
}

// ScaledWidth computes the output width for a target height, preserving
// aspect ratio and rounding to the nearest even value as required by
// 4:2:0 chroma subsampling. Matches ffmpeg's scale=-2 behaviour.
func ScaledWidth(sourceWidth, sourceHeight, targetHeight int) int {
	if sourceHeight == 0 {
		return 0
	}
	width := int(float64(sourceWidth)*float64(targetHeight)/float64(sourceHeight) + 0.5)
	if width%2 != 0 {
		width++
	}
	return width
}

// FFmpeg runs the external processing tools. It implements the prober,
// transcoder and segmenter capabilities consumed by the pipeline.
type FFmpeg struct {
	logger        zerolog.Logger
	FFmpegBinary  string
	FFprobeBinary string
}

func NewFFmpeg(ffmpegBinary, ffprobeBinary string) *FFmpeg {
	return &FFmpeg{
		logger:        log.With().Str("module", "media").Logger(),
		FFmpegBinary:  ffmpegBinary,
		FFprobeBinary: ffprobeBinary,
	}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*SourceInfo, error) {
	return Probe(ctx, f.FFprobeBinary, path)
}

// Transcode produces one rendition. Exactly one video stream and at most
// one audio stream are selected; data, subtitle and timecode streams are
// dropped. Embedded metadata is stripped so per-segment timestamp resets
// cannot conflict with it later.
func (f *FFmpeg) Transcode(ctx context.Context, req TranscodeRequest) error {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return &TranscodeError{Height: req.TargetHeight, Err: err}
	}

	args := []string{
		"-y",
		"-i", req.SourcePath,
		"-map", "0:v:0", // exactly one video stream
		"-map", "0:a:0?", // at most one audio stream
		"-vf", fmt.Sprintf("scale=-2:%d", req.TargetHeight),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", fmt.Sprintf("%d", crfForHeight(req.TargetHeight)),
		// keyframe at every segment boundary, so every future segment
		// starts on a clean keyframe without re-encoding
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", req.SegmentDuration),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "160k",
		"-movflags", "+faststart",
		"-map_metadata", "-1",
		"-dn",
		"-sn",
		req.OutputPath,
	}

	f.logger.Info().
		Int("height", req.TargetHeight).
		Str("output", req.OutputPath).
		Msg("transcoding rendition")

	if _, tail, err := runTool(ctx, f.logger, f.FFmpegBinary, args); err != nil {
		return &TranscodeError{Height: req.TargetHeight, Stderr: tail, Err: err}
	}

	return nil
}

package media

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
)

// SourceInfo is the read-only inspection result of a media file.
type SourceInfo struct {
	Width           int
	Height          int
	DurationSeconds float64
}

// Probe extracts width, height and duration from a media file using
// ffprobe. It has no side effects.
func Probe(ctx context.Context, ffprobeBinary string, path string) (*SourceInfo, error) {
	args := []string{
		"-v", "error", // hide debug information
		"-select_streams", "v:0", // first video stream only
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	logger := log.With().Str("module", "media").Logger()
	stdout, tail, err := runTool(ctx, logger, ffprobeBinary, args)
	if err != nil {
		return nil, &ProbeError{Path: path, Stderr: tail, Err: err}
	}

	out := struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}{}

	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	if len(out.Streams) == 0 {
		return nil, &ProbeError{Path: path, Err: errors.New("no video stream found")}
	}

	info := &SourceInfo{
		Width:  out.Streams[0].Width,
		Height: out.Streams[0].Height,
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, &ProbeError{Path: path, Err: errors.New("unable to determine source resolution")}
	}

	if out.Format.Duration != "" {
		info.DurationSeconds, err = strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, &ProbeError{Path: path, Err: err}
		}
	}

	return info, nil
}

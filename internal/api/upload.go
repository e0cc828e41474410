package api

import (
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"vodpack/internal/metrics"
	"vodpack/internal/pipeline"
)

var allowedExtensions = []string{".mp4", ".mov", ".mkv", ".webm"}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename reduces an uploaded filename to a safe basename.
func sanitizeFilename(filename string) string {
	name := filepath.Base(filepath.ToSlash(filename))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	return name
}

func allowedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return lo.Contains(allowedExtensions, ext)
}

// Upload runs the whole processing pipeline for one uploaded video and
// returns the committed manifest. The transcodes block the request,
// which is an accepted latency tradeoff.
func (a *ApiManagerCtx) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadMB<<20)

	file, header, err := r.FormFile("video_file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "choose a video file to upload")
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if filename == "" {
		a.writeError(w, http.StatusBadRequest, "could not determine a safe filename for the upload")
		return
	}
	if !allowedFile(filename) {
		a.writeError(w, http.StatusBadRequest, "unsupported file type, upload mp4, mov, mkv or webm")
		return
	}

	resolutions := lo.FilterMap(r.Form["resolutions"], func(value string, _ int) (int, bool) {
		height, err := strconv.Atoi(value)
		return height, err == nil && lo.Contains(a.config.Resolutions, height)
	})
	if len(resolutions) == 0 {
		a.writeError(w, http.StatusBadRequest, "select at least one target resolution")
		return
	}

	segmentDuration := a.config.SegmentDuration
	if value := r.FormValue("segment_duration"); value != "" {
		segmentDuration, err = strconv.Atoi(value)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "provide a valid segment duration in seconds")
			return
		}
	}

	metrics.UploadsTotal.Inc()

	manifest, err := a.pipeline.Process(r.Context(), pipeline.Request{
		Source:          file,
		Filename:        filename,
		Resolutions:     resolutions,
		SegmentDuration: segmentDuration,
	})
	if err != nil {
		a.logger.Err(err).Str("filename", filename).Msg("upload processing failed")
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.writeJSON(w, http.StatusCreated, manifest)
}

package media

import "fmt"

// ProbeError means the source is unreadable or not a valid media
// container. Fatal for the whole upload.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("probe failed for %s: %v\n%s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("probe failed for %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TranscodeError wraps the external tool diagnostics for one failed
// resolution. The caller aborts remaining resolutions and rolls back.
type TranscodeError struct {
	Height int
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcode to %dp failed: %v\n%s", e.Height, e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcode to %dp failed: %v", e.Height, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// SegmentError is a segmenter tool failure, same rollback contract as
// TranscodeError.
type SegmentError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *SegmentError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("segmenting %s failed: %v\n%s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("segmenting %s failed: %v", e.Path, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

package media

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCrfForHeight(t *testing.T) {
	cases := []struct {
		height int
		want   int
	}{
		{4320, 20},
		{2160, 20},
		{1440, 21},
		{1080, 22},
		{720, 23},
		{480, 24},
		{360, 25},
		{144, 25},
	}

	for _, c := range cases {
		if got := crfForHeight(c.height); got != c.want {
			t.Errorf("crfForHeight(%d) = %d, want %d", c.height, got, c.want)
		}
	}
}

func TestScaledWidth(t *testing.T) {
	t.Run("known scalings", func(t *testing.T) {
		cases := []struct {
			srcW, srcH, target int
			want               int
		}{
			{1920, 1080, 720, 1280},
			{1920, 1080, 480, 854}, // 853.33 rounds to even
			{1280, 720, 360, 640},
			{3840, 2160, 1080, 1920},
			{1000, 1000, 480, 480},
		}

		for _, c := range cases {
			if got := ScaledWidth(c.srcW, c.srcH, c.target); got != c.want {
				t.Errorf("ScaledWidth(%d, %d, %d) = %d, want %d", c.srcW, c.srcH, c.target, got, c.want)
			}
		}
	})

	t.Run("width is always even and aspect-preserving", func(t *testing.T) {
		sources := [][2]int{{1920, 1080}, {1280, 720}, {1918, 1078}, {720, 576}, {853, 480}}
		targets := []int{2160, 1440, 1080, 720, 480, 360}

		for _, src := range sources {
			for _, target := range targets {
				width := ScaledWidth(src[0], src[1], target)

				if width%2 != 0 {
					t.Errorf("ScaledWidth(%d, %d, %d) = %d is odd", src[0], src[1], target, width)
				}

				// within one pixel-rounding step of the source aspect ratio
				sourceAspect := float64(src[0]) / float64(src[1])
				ideal := sourceAspect * float64(target)
				if math.Abs(float64(width)-ideal) > 2 {
					t.Errorf("ScaledWidth(%d, %d, %d) = %d, too far from ideal %f", src[0], src[1], target, width, ideal)
				}
			}
		}
	})
}

func TestStderrTail(t *testing.T) {
	t.Run("short output passes through", func(t *testing.T) {
		in := "line one\nline two"
		if got := stderrTail([]byte(in)); got != in {
			t.Errorf("stderrTail = %q, want %q", got, in)
		}
	})

	t.Run("long output keeps only the tail", func(t *testing.T) {
		lines := make([]string, 30)
		for i := range lines {
			lines[i] = fmt.Sprintf("line %d", i)
		}

		got := stderrTail([]byte(strings.Join(lines, "\n")))
		gotLines := strings.Split(got, "\n")

		if len(gotLines) != stderrTailLines {
			t.Fatalf("kept %d lines, want %d", len(gotLines), stderrTailLines)
		}
		if gotLines[0] != "line 18" || gotLines[len(gotLines)-1] != "line 29" {
			t.Errorf("unexpected tail window: %q", got)
		}
	})
}

func TestCollectChunks(t *testing.T) {
	dir := t.TempDir()

	// written out of order on purpose, the zero-padded names must decide
	for _, name := range []string{"clip_part_002.mp4", "clip_part_000.mp4", "clip_part_001.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := collectChunks(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Index != i+1 {
			t.Errorf("chunk %d has index %d, want contiguous 1-based indices", i, chunk.Index)
		}
		wantName := fmt.Sprintf("clip_part_%03d.mp4", i)
		if filepath.Base(chunk.Path) != wantName {
			t.Errorf("chunk %d path = %s, want %s", i, chunk.Path, wantName)
		}
		if chunk.SizeBytes != int64(len(wantName)) {
			t.Errorf("chunk %d size = %d, want %d", i, chunk.SizeBytes, len(wantName))
		}
	}
}

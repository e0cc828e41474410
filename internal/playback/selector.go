package playback

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vodpack/internal/asset"
)

const (
	// sliding window of recent throughput samples
	sampleWindow = 5

	// downgrade when mean throughput drops below factor times the
	// current bitrate; upgrade only to variants fitting within factor
	// times the mean
	downgradeFactor = 1.15
	upgradeFactor   = 0.85

	// consecutive qualifying cycles before acting. Asymmetric on purpose,
	// upgrades are held back longer than downgrades to avoid flapping.
	downgradeAfter = 2
	upgradeAfter   = 3
)

// SelectorCtx decides variant switches from observed throughput using a
// hysteresis-controlled loop. It holds the sliding sample window and the
// consecutive upgrade/downgrade counters of the playback context.
type SelectorCtx struct {
	logger zerolog.Logger
	table  BitrateTable

	// ladder is ordered worst to best: ascending bitrate, ties broken
	// toward lower height so equal-bitrate variants rank deterministically
	ladder []asset.Variant

	samples   []float64
	upCount   int
	downCount int
}

func NewSelector(variants []asset.Variant, table BitrateTable) *SelectorCtx {
	s := &SelectorCtx{
		logger: log.With().Str("module", "playback").Str("submodule", "selector").Logger(),
		table:  table,
	}

	s.ladder = append(s.ladder, variants...)
	sort.SliceStable(s.ladder, func(i, j int) bool {
		bi, bj := table.Resolve(&s.ladder[i]), table.Resolve(&s.ladder[j])
		if bi != bj {
			return bi < bj
		}
		return s.ladder[i].Height < s.ladder[j].Height
	})

	return s
}

// Reset clears the sample window and both counters. Called on every
// variant switch and whenever auto-adapt is re-enabled.
func (s *SelectorCtx) Reset() {
	s.samples = nil
	s.upCount = 0
	s.downCount = 0
}

// rank locates a variant on the ladder. Unknown keys rank below
// everything so a stale key can only produce an upgrade into the ladder.
func (s *SelectorCtx) rank(key string) int {
	for i := range s.ladder {
		if s.ladder[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *SelectorCtx) mean() float64 {
	var sum float64
	for _, sample := range s.samples {
		sum += sample
	}
	return sum / float64(len(s.samples))
}

// Observe feeds one throughput sample and returns the key of the variant
// to switch to, if the hysteresis thresholds were met this cycle. On a
// switch decision all counters and history are reset.
func (s *SelectorCtx) Observe(currentKey string, kbps float64) (string, bool) {
	s.samples = append(s.samples, kbps)
	if len(s.samples) > sampleWindow {
		s.samples = s.samples[len(s.samples)-sampleWindow:]
	}

	current := s.rank(currentKey)
	if current < 0 || len(s.ladder) < 2 {
		return "", false
	}

	mean := s.mean()
	currentBitrate := s.table.Resolve(&s.ladder[current])

	if mean < downgradeFactor*currentBitrate {
		s.upCount = 0
		s.downCount++

		if s.downCount < downgradeAfter {
			return "", false
		}

		// act exactly once, then start over with a clean window
		s.Reset()

		if current == 0 {
			// already on the lowest rung
			return "", false
		}

		target := s.ladder[current-1].Key
		s.logger.Info().
			Float64("mean-kbps", mean).
			Float64("bitrate-kbps", currentBitrate).
			Str("target", target).
			Msg("downgrade decided")
		return target, true
	}

	// highest-bitrate variant that fits within the headroom and is
	// strictly better than the current one
	upgrade := -1
	for i := len(s.ladder) - 1; i > current; i-- {
		if s.table.Resolve(&s.ladder[i]) <= upgradeFactor*mean {
			upgrade = i
			break
		}
	}

	if upgrade < 0 {
		s.upCount = 0
		s.downCount = 0
		return "", false
	}

	s.downCount = 0
	s.upCount++

	if s.upCount < upgradeAfter {
		return "", false
	}

	s.Reset()

	target := s.ladder[upgrade].Key
	s.logger.Info().
		Float64("mean-kbps", mean).
		Float64("bitrate-kbps", currentBitrate).
		Str("target", target).
		Msg("upgrade decided")
	return target, true
}

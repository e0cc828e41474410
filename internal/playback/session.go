package playback

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vodpack/internal/asset"
	"vodpack/internal/metrics"
)

// State is the playback session state.
type State int

const (
	StateIdle State = iota
	StateFullFile
	StateSegmented
)

var stateNames = [...]string{"idle", "full-file", "segmented"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ErrNoManifest is returned when the controller is asked to load an
// empty or missing manifest. The engine stays disabled rather than
// driving a broken player.
var ErrNoManifest = errors.New("no playable manifest")

// Sink is the media element the controller drives. Load installs a new
// source; the host calls OnSourceReady once the sink accepts seeks.
type Sink interface {
	Load(src string)
	Seek(offsetSeconds float64)
}

// NetworkObserver samples transfer performance for the currently loading
// resource. Both methods may report no data, in which case the
// adaptation cycle is skipped.
type NetworkObserver interface {
	SampleThroughput(resourceRef string) (kbps float64, ok bool)
	DownlinkEstimate() (kbps float64, ok bool)
}

const (
	// first check shortly after a source switch, to capture the cost of
	// loading the new source
	firstCheckDelay = 1200 * time.Millisecond

	// steady-state re-check period while auto-adapt stays enabled
	checkInterval = 4 * time.Second
)

// DeriveIndex returns the 1-based segment index for an elapsed time. A
// valid hint wins; otherwise the nominal interval containing t decides,
// clamped to the segment range.
func DeriveIndex(hint int, t float64, segmentDuration float64, segmentCount int) int {
	if segmentCount < 1 {
		return 0
	}
	if hint >= 1 && hint <= segmentCount {
		return hint
	}
	if segmentDuration <= 0 || t < 0 {
		return 1
	}
	index := int(math.Floor(t/segmentDuration)) + 1
	if index < 1 {
		index = 1
	}
	if index > segmentCount {
		index = segmentCount
	}
	return index
}

// Highlight is the active chip/segment projection consumed identically
// by all renderers.
type Highlight struct {
	VariantKey   string
	SegmentIndex int
	FullFile     bool
}

// ControllerCtx owns the playback context: current variant, mode,
// segment index, offset and adaptive state. It is the only mutator of
// that state; timers and switches follow strict cancel-before-replace
// discipline via the epoch counter.
type ControllerCtx struct {
	logger zerolog.Logger
	mu     sync.Mutex

	sink     Sink
	observer NetworkObserver
	table    BitrateTable

	manifest *asset.Manifest
	selector *SelectorCtx

	state        State
	variant      *asset.Variant
	segmentIndex int     // meaningful in segmented mode only
	offset       float64 // offset within the current source
	autoAdapt    bool

	// epoch is bumped on every source change. Timer callbacks and resume
	// handlers capture it and bail out when it moved on, so a stale
	// callback can never corrupt the new context.
	epoch         uint64
	pendingResume bool
	resumeOffset  float64
	timer         *time.Timer
}

func NewController(sink Sink, observer NetworkObserver, table BitrateTable) *ControllerCtx {
	return &ControllerCtx{
		logger:    log.With().Str("module", "playback").Str("submodule", "session").Logger(),
		sink:      sink,
		observer:  observer,
		table:     table,
		state:     StateIdle,
		autoAdapt: true,
	}
}

// LoadManifest enters full-file playback on the default variant at
// offset zero. An empty manifest disables the engine entirely.
func (c *ControllerCtx) LoadManifest(m *asset.Manifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m == nil {
		return ErrNoManifest
	}
	variant, ok := m.DefaultVariant()
	if !ok {
		return ErrNoManifest
	}

	c.manifest = m
	c.selector = NewSelector(m.Variants, c.table)
	c.state = StateFullFile
	c.variant = variant
	c.segmentIndex = 0
	c.offset = 0

	c.installSource(variant.File, false, 0)

	c.logger.Info().
		Str("id", m.ID).
		Str("variant", variant.Key).
		Msg("manifest loaded")
	return nil
}

// SelectVariant is a manual variant switch. It disables auto-adapt and
// clears all adaptive state, then resumes at the preserved elapsed time.
func (c *ControllerCtx) SelectVariant(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoAdapt = false
	if c.selector != nil {
		c.selector.Reset()
	}

	return c.switchVariant(key, "manual")
}

// SelectSegment enters segmented playback at the given index. An unknown
// index falls back to full-file playback at the best-known offset
// rather than failing visibly.
func (c *ControllerCtx) SelectSegment(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle || c.variant == nil {
		return
	}

	segment, ok := c.variant.SegmentByIndex(index)
	if !ok {
		c.logger.Warn().Int("index", index).Msg("segment lookup failed, falling back to full file")
		elapsed := c.elapsed()
		c.state = StateFullFile
		c.segmentIndex = 0
		c.offset = 0
		c.installSource(c.variant.File, elapsed > 0, elapsed)
		return
	}

	c.state = StateSegmented
	c.segmentIndex = index
	c.offset = 0
	c.installSource(segment.URL, false, 0)
}

// Advance moves segmented playback to the next segment when the current
// one finishes. At the end of the asset it stays terminal. In full-file
// mode the sink handles continuous playback, so this is a no-op.
func (c *ControllerCtx) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSegmented || c.variant == nil {
		return
	}

	next, ok := c.variant.SegmentByIndex(c.segmentIndex + 1)
	if !ok {
		return
	}

	c.segmentIndex = next.Index
	c.offset = 0
	c.installSource(next.URL, false, 0)
}

// OnTimeObserved records the current playback offset within the active
// source. It never changes the playback source.
func (c *ControllerCtx) OnTimeObserved(offsetSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return
	}
	c.offset = offsetSeconds
}

// OnSourceReady fires the one-shot restore-position action armed by the
// last source switch, once the sink accepts seeks.
func (c *ControllerCtx) OnSourceReady() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pendingResume {
		return
	}
	c.pendingResume = false
	c.offset = c.resumeOffset
	c.sink.Seek(c.resumeOffset)
}

// SetAutoAdapt toggles automatic quality adaptation. Re-enabling resumes
// sampling from a clean window.
func (c *ControllerCtx) SetAutoAdapt(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.autoAdapt == enabled {
		return
	}
	c.autoAdapt = enabled

	if c.selector != nil {
		c.selector.Reset()
	}

	if enabled && c.state != StateIdle {
		c.schedule(firstCheckDelay)
	} else if c.timer != nil {
		c.timer.Stop()
	}
}

// Close cancels any pending timer.
func (c *ControllerCtx) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
	}
}

//
// projections
//

func (c *ControllerCtx) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ControllerCtx) CurrentVariant() *asset.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

func (c *ControllerCtx) AutoAdapt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoAdapt
}

// Elapsed is the playback position within the whole asset.
func (c *ControllerCtx) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed()
}

// ComputeHighlight projects the active variant chip and segment entry
// from the current state.
func (c *ControllerCtx) ComputeHighlight() Highlight {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle || c.variant == nil || c.manifest == nil {
		return Highlight{}
	}

	highlight := Highlight{VariantKey: c.variant.Key}
	switch c.state {
	case StateFullFile:
		highlight.FullFile = true
		// nominal segment for UI purposes only
		highlight.SegmentIndex = DeriveIndex(0, c.offset, c.manifest.SegmentDuration, len(c.variant.Segments))
	case StateSegmented:
		highlight.SegmentIndex = c.segmentIndex
	}
	return highlight
}

//
// internals, mu held
//

func (c *ControllerCtx) elapsed() float64 {
	if c.state == StateSegmented && c.manifest != nil && c.segmentIndex > 0 {
		return float64(c.segmentIndex-1)*c.manifest.SegmentDuration + c.offset
	}
	return c.offset
}

// switchVariant re-enters the current mode on the target variant,
// preserving the elapsed-time position.
func (c *ControllerCtx) switchVariant(key string, reason string) error {
	if c.manifest == nil {
		return ErrNoManifest
	}
	target, ok := c.manifest.VariantByKey(key)
	if !ok {
		return errors.New("unknown variant: " + key)
	}

	elapsed := c.elapsed()
	previous := ""
	if c.variant != nil {
		previous = c.variant.Key
	}

	c.variant = target
	metrics.VariantSwitchesTotal.WithLabelValues(reason).Inc()

	c.logger.Info().
		Str("from", previous).
		Str("to", key).
		Str("reason", reason).
		Float64("elapsed", elapsed).
		Msg("variant switch")

	if c.state == StateSegmented {
		index := DeriveIndex(0, elapsed, c.manifest.SegmentDuration, len(target.Segments))
		segment, ok := target.SegmentByIndex(index)
		if !ok {
			// incomplete segment list on the target, use the full file
			c.state = StateFullFile
			c.segmentIndex = 0
			c.offset = 0
			c.installSource(target.File, elapsed > 0, elapsed)
			return nil
		}

		within := elapsed - float64(index-1)*c.manifest.SegmentDuration
		if within < 0 {
			within = 0
		}
		c.segmentIndex = index
		c.offset = 0
		c.installSource(segment.URL, within > 0, within)
		return nil
	}

	c.state = StateFullFile
	c.segmentIndex = 0
	c.offset = 0
	c.installSource(target.File, elapsed > 0, elapsed)
	return nil
}

// installSource cancels pending timers and resume handlers from the
// prior source, then installs the new one and re-arms the one-shot
// restore action. Cancel always happens before replace. Throughput
// history belongs to the outgoing source and is discarded with it.
func (c *ControllerCtx) installSource(src string, resume bool, resumeOffset float64) {
	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.selector != nil {
		c.selector.Reset()
	}

	c.pendingResume = resume
	c.resumeOffset = resumeOffset

	c.sink.Load(src)

	if c.autoAdapt {
		c.schedule(firstCheckDelay)
	}
}

func (c *ControllerCtx) schedule(delay time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}

	epoch := c.epoch
	c.timer = time.AfterFunc(delay, func() {
		c.adaptTick(epoch)
	})
}

// currentResourceRef is the locator whose transfer timing the observer
// should sample.
func (c *ControllerCtx) currentResourceRef() string {
	if c.state == StateSegmented && c.variant != nil {
		if segment, ok := c.variant.SegmentByIndex(c.segmentIndex); ok {
			return segment.URL
		}
	}
	if c.variant != nil {
		return c.variant.File
	}
	return ""
}

// adaptTick runs one throughput check cycle. A failed sample is
// swallowed and simply skips the cycle without mutating decision state.
func (c *ControllerCtx) adaptTick(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || !c.autoAdapt || c.state == StateIdle || c.selector == nil {
		return
	}

	kbps, ok := c.observer.SampleThroughput(c.currentResourceRef())
	if !ok {
		kbps, ok = c.observer.DownlinkEstimate()
	}

	if ok {
		currentBitrate := c.table.Resolve(c.variant)
		if target, switchNow := c.selector.Observe(c.variant.Key, kbps); switchNow {
			reason := "upgrade"
			if targetVariant, found := c.manifest.VariantByKey(target); found && c.table.Resolve(targetVariant) < currentBitrate {
				reason = "downgrade"
			}
			if err := c.switchVariant(target, reason); err == nil {
				// installSource bumped the epoch and armed the first check
				return
			}
		}
	}

	c.schedule(checkInterval)
}

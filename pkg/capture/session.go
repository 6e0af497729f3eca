// Package capture owns a camera session: admission of captures, the
// camera-ready configuration queue, and the serialized post-processing
// worker that turns raw captures into delivered outputs.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/pkg/driver"
	"github.com/menta2k/camera-capture/pkg/gallery"
	"github.com/menta2k/camera-capture/pkg/output"
	"github.com/menta2k/camera-capture/pkg/processing"
	"github.com/menta2k/camera-capture/pkg/readyqueue"
	"github.com/menta2k/camera-capture/pkg/sizing"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Event types published for every capture that reached the worker
const (
	EventCaptureCompleted = "capture.completed"
	EventCaptureFailed    = "capture.failed"
)

// Event describes the outcome of a capture
type Event struct {
	Type       string             `json:"type"`
	Sequence   uint64             `json:"sequence"`
	Target     string             `json:"target"`
	Descriptor *output.Descriptor `json:"descriptor,omitempty"`
	Error      string             `json:"error,omitempty"`
	Time       time.Time          `json:"time"`
}

// EventSink receives capture events. Publish is called from the worker
// goroutine and must not block for long.
type EventSink interface {
	Publish(Event)
}

// Options configures a Session
type Options struct {
	Fs        afero.Fs
	Dirs      output.Dirs
	Indexer   gallery.Indexer
	Processor *processing.Processor
	Clock     func() time.Time
	Events    EventSink
}

// Snapshot is the observable state of a session
type Snapshot struct {
	Camera          string            `json:"camera"`
	Opened          bool              `json:"opened"`
	ReadyToCapture  bool              `json:"ready_to_capture"`
	Facing          string            `json:"facing"`
	FlashMode       types.FlashMode   `json:"flash_mode"`
	TorchMode       types.TorchMode   `json:"torch_mode"`
	Quality         types.QualityTier `json:"quality,omitempty"`
	PictureSize     *types.Size       `json:"picture_size,omitempty"`
	PendingActions  []string          `json:"pending_actions"`
	RestartRequired bool              `json:"restart_required"`
	Captures        uint64            `json:"captures"`
	Decodes         int64             `json:"decodes"`
	Closed          bool              `json:"closed"`
}

type result struct {
	desc *output.Descriptor
	err  error
}

type job struct {
	seq    uint64
	req    types.CaptureRequest
	raw    types.RawCapture
	result chan result
}

// Session is an explicit camera context: it owns the driver, the ready
// queue, the capture guard and the post-processing worker.
//
// A facing change applied on open is bracketed by StopPreview and
// StartPreview only. The device itself stays open across the switch, so a
// driver that needs a full reopen to change sensors must do it inside
// SetFacing.
type Session struct {
	drv       driver.Driver
	queue     *readyqueue.Queue
	guard     Guard
	processor *processing.Processor
	router    *output.Router
	registrar *gallery.Registrar
	events    EventSink

	// pipelineMu makes decode, mutation and delivery one critical section
	pipelineMu sync.Mutex
	jobs       chan job
	quit       chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once

	mu          sync.Mutex
	facing      types.Facing
	lastFlash   types.FlashMode
	torch       types.TorchMode
	tier        types.QualityTier
	pictureSize *types.Size
	seq         uint64
	closed      bool
}

// NewSession creates a session over drv. A nil driver yields a session on
// which every camera operation fails with ErrNoDevice.
func NewSession(drv driver.Driver, opts Options) *Session {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Processor == nil {
		opts.Processor = processing.NewProcessor()
	}

	registrar := gallery.NewRegistrar(opts.Indexer)
	var routerOpts []output.Option
	if opts.Clock != nil {
		routerOpts = append(routerOpts, output.WithClock(opts.Clock))
	}

	s := &Session{
		drv:        drv,
		processor:  opts.Processor,
		router:     output.NewRouter(opts.Fs, opts.Dirs, registrar, routerOpts...),
		registrar:  registrar,
		events:     opts.Events,
		jobs:       make(chan job),
		quit:       make(chan struct{}),
		workerDone: make(chan struct{}),
		facing:     types.FacingBack,
		lastFlash:  types.FlashModeOff,
		torch:      types.TorchModeOff,
	}

	if drv != nil {
		s.queue = readyqueue.New(drv.StopPreview, drv.StartPreview)
		drv.OnOpened(s.handleOpened)
	} else {
		s.queue = readyqueue.New(nil, nil)
	}

	go s.worker()
	return s
}

// Registrar returns the gallery registrar used for file targets
func (s *Session) Registrar() *gallery.Registrar {
	return s.registrar
}

// Router returns the output router
func (s *Session) Router() *output.Router {
	return s.router
}

// Start opens the camera. Configuration submitted before the driver
// reports the device open is queued and applied on open.
func (s *Session) Start() error {
	if s.drv == nil {
		return types.ErrNoDevice
	}
	if s.isClosed() {
		return fmt.Errorf("%w: session is closed", types.ErrInvalidState)
	}

	s.queue.MarkOpening()
	if err := s.drv.Open(); err != nil {
		s.queue.MarkClosed()
		logger.WithComponent("capture").Error().Err(err).Msg("failed to open camera")
		return fmt.Errorf("failed to open camera: %w", err)
	}
	logger.WithComponent("capture").Debug().Msg("camera opening")
	return nil
}

// WaitOpen blocks until the camera reports open and queued configuration
// has been applied
func (s *Session) WaitOpen(ctx context.Context) error {
	if s.drv == nil {
		return types.ErrNoDevice
	}
	switch s.queue.State() {
	case readyqueue.Open:
		return nil
	case readyqueue.Closed:
		return fmt.Errorf("%w: camera is not opening", types.ErrInvalidState)
	}

	select {
	case <-s.queue.Submit(readyqueue.Action{Key: "opened"}):
	case <-ctx.Done():
		return ctx.Err()
	}
	if !s.drv.IsOpened() {
		return fmt.Errorf("%w: camera closed while opening", types.ErrInvalidState)
	}
	return nil
}

func (s *Session) handleOpened() {
	log := logger.WithComponent("capture")
	if err := s.drv.StartPreview(); err != nil {
		log.Error().Err(err).Msg("failed to start preview")
	}
	s.queue.MarkOpened()
	log.Info().Msg("camera open")
}

// Resume restarts the camera when it is neither open nor opening
func (s *Session) Resume() error {
	if s.drv == nil {
		return types.ErrNoDevice
	}
	if s.drv.IsOpened() || s.queue.State() == readyqueue.Opening {
		return nil
	}
	return s.Start()
}

// Pause stops the camera. Queued configuration survives until the next
// Start.
func (s *Session) Pause() error {
	if s.drv == nil {
		return types.ErrNoDevice
	}
	if s.queue.State() == readyqueue.Closed && !s.drv.IsOpened() {
		return nil
	}

	log := logger.WithComponent("capture")
	if s.drv.IsOpened() {
		if err := s.drv.StopPreview(); err != nil {
			log.Warn().Err(err).Msg("failed to stop preview")
		}
	}
	s.queue.MarkClosed()
	if err := s.drv.Close(); err != nil {
		return fmt.Errorf("failed to close camera: %w", err)
	}
	log.Info().Msg("camera paused")
	return nil
}

// Close stops the camera and the worker. Captures still waiting for the
// worker fail with ErrInvalidState.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.drv != nil {
			err = s.Pause()
		}
		close(s.quit)
		<-s.workerDone
		s.guard.Release()
		logger.WithComponent("capture").Debug().Msg("session closed")
	})
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetFacing switches between the front and back camera. A change submitted
// while the camera is opening restarts the preview when applied.
func (s *Session) SetFacing(facing types.Facing) (<-chan struct{}, error) {
	if !facing.Valid() {
		return nil, fmt.Errorf("%w: invalid camera type: %d", types.ErrInvalidArgument, int(facing))
	}
	if s.drv == nil {
		return nil, types.ErrNoDevice
	}

	s.mu.Lock()
	s.facing = facing
	s.mu.Unlock()

	return s.queue.Submit(readyqueue.Action{
		Key:             "facing",
		RequiresRestart: true,
		Run:             func() error { return s.drv.SetFacing(facing) },
	}), nil
}

// SetCaptureQuality selects the picture size for a quality tier from the
// sizes the driver supports now
func (s *Session) SetCaptureQuality(tier types.QualityTier) (<-chan struct{}, error) {
	tier, err := types.ParseQualityTier(string(tier))
	if err != nil {
		return nil, err
	}
	if s.drv == nil {
		return nil, types.ErrNoDevice
	}

	sizes, err := s.drv.SupportedPictureSizes()
	if err != nil {
		return nil, fmt.Errorf("failed to read supported sizes: %w", err)
	}
	size, err := sizing.Select(sizes, tier)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tier = tier
	s.pictureSize = &size
	s.mu.Unlock()

	logger.WithComponent("capture").Debug().Str("quality", string(tier)).Str("size", size.String()).Msg("capture quality selected")
	return s.queue.Submit(readyqueue.Action{
		Key: "pictureSize",
		Run: func() error { return s.drv.SetPictureSize(size) },
	}), nil
}

// SetFlashMode sets the flash and remembers it for when the torch turns off.
// Unknown values fall back to automatic flash.
func (s *Session) SetFlashMode(mode types.FlashMode) (<-chan struct{}, error) {
	if s.drv == nil {
		return nil, types.ErrNoDevice
	}
	if !mode.Valid() {
		logger.WithComponent("capture").Warn().Int("flash_mode", int(mode)).Msg("unknown flash mode, using auto")
		mode = types.FlashModeAuto
	}
	flash := driverFlash(mode)

	s.mu.Lock()
	s.lastFlash = mode
	s.mu.Unlock()

	return s.submitFlash(flash), nil
}

// SetTorchMode turns the torch on, or restores the last flash mode. Unknown
// values fall back to automatic flash.
func (s *Session) SetTorchMode(mode types.TorchMode) (<-chan struct{}, error) {
	if s.drv == nil {
		return nil, types.ErrNoDevice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var flash types.DriverFlash
	switch mode {
	case types.TorchModeOn:
		flash = types.DriverFlashTorch
	case types.TorchModeOff, types.TorchModeAuto:
		flash = driverFlash(s.lastFlash)
	default:
		mode = types.TorchModeAuto
		flash = types.DriverFlashAuto
	}
	s.torch = mode
	return s.submitFlash(flash), nil
}

func (s *Session) submitFlash(flash types.DriverFlash) <-chan struct{} {
	return s.queue.Submit(readyqueue.Action{
		Key: "flash",
		Run: func() error { return s.drv.SetFlash(flash) },
	})
}

func driverFlash(mode types.FlashMode) types.DriverFlash {
	switch mode {
	case types.FlashModeOff:
		return types.DriverFlashOff
	case types.FlashModeOn:
		return types.DriverFlashOn
	default:
		return types.DriverFlashAuto
	}
}

// SupportedSizes returns the picture sizes the driver supports, smallest
// first
func (s *Session) SupportedSizes() ([]types.Size, error) {
	if s.drv == nil {
		return nil, types.ErrNoDevice
	}
	sizes, err := s.drv.SupportedPictureSizes()
	if err != nil {
		return nil, err
	}
	return sizing.Sort(sizes), nil
}

// State returns a snapshot of the session
func (s *Session) State() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Facing:    s.facing.String(),
		FlashMode: s.lastFlash,
		TorchMode: s.torch,
		Quality:   s.tier,
		Captures:  s.seq,
		Decodes:   s.processor.Decodes(),
		Closed:    s.closed,
	}
	if s.pictureSize != nil {
		size := *s.pictureSize
		snap.PictureSize = &size
	}
	s.mu.Unlock()

	snap.Camera = s.queue.State().String()
	snap.PendingActions = s.queue.Pending()
	snap.RestartRequired = s.queue.RestartRequired()
	snap.ReadyToCapture = s.guard.Ready()
	if s.drv != nil {
		snap.Opened = s.drv.IsOpened()
	}
	return snap
}

// Capture takes a picture and delivers it according to req. It fails with
// ErrBusy while a previous capture is still waiting for the sensor. ctx
// bounds only the wait: an admitted capture completes and is published even
// when the caller gave up.
func (s *Session) Capture(ctx context.Context, req types.CaptureRequest) (*output.Descriptor, error) {
	log := logger.WithComponent("capture")

	if s.drv == nil {
		return nil, types.ErrNoDevice
	}
	if s.isClosed() {
		return nil, fmt.Errorf("%w: session is closed", types.ErrInvalidState)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.drv.IsOpened() {
		return nil, fmt.Errorf("%w: camera is not open", types.ErrInvalidState)
	}

	if !s.guard.TryAcquire() {
		log.Warn().Str("target", req.Target.String()).Msg("capture rejected, previous capture in flight")
		return nil, types.ErrBusy
	}
	if req.Quality != "" {
		if _, err := s.SetCaptureQuality(req.Quality); err != nil {
			s.guard.Release()
			return nil, err
		}
	}

	if req.PlaySound {
		if sounder, ok := s.drv.(driver.ShutterSounder); ok {
			sounder.PlayShutterSound()
		}
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	done := make(chan result, 1)
	err := s.drv.TakePicture(func(raw types.RawCapture, err error) {
		s.handOff(job{seq: seq, req: req, raw: raw, result: done}, err)
	})
	if err != nil {
		// the guard stays closed: the driver may still call back
		log.Error().Err(err).Uint64("sequence", seq).Msg("failed to take picture")
		return nil, fmt.Errorf("failed to take picture: %w", err)
	}

	log.Debug().Uint64("sequence", seq).Str("target", req.Target.String()).Msg("capture admitted")
	select {
	case r := <-done:
		return r.desc, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handOff passes a raw capture to the worker and reopens the guard. It runs
// on the driver's callback goroutine.
func (s *Session) handOff(j job, captureErr error) {
	defer s.guard.Release()

	if captureErr != nil {
		logger.WithComponent("capture").Error().Err(captureErr).Uint64("sequence", j.seq).Msg("sensor capture failed")
		s.finish(j, result{err: fmt.Errorf("sensor capture failed: %w", captureErr)})
		return
	}

	select {
	case s.jobs <- j:
	case <-s.quit:
		s.finish(j, result{err: fmt.Errorf("%w: session is closed", types.ErrInvalidState)})
	}
}

func (s *Session) worker() {
	defer close(s.workerDone)
	for {
		select {
		case j := <-s.jobs:
			desc, err := s.Deliver(j.raw, j.req)
			s.finish(j, result{desc: desc, err: err})
		case <-s.quit:
			return
		}
	}
}

// Deliver processes a raw capture and routes it. Deliveries are serialized
// with the capture worker, so at most one image is decoded at a time.
func (s *Session) Deliver(raw types.RawCapture, req types.CaptureRequest) (*output.Descriptor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.pipelineMu.Lock()
	defer s.pipelineMu.Unlock()

	img, err := s.processor.Process(raw, req)
	if err != nil {
		return nil, err
	}
	return s.router.Route(img, req)
}

func (s *Session) finish(j job, r result) {
	j.result <- r

	if s.events == nil {
		return
	}
	ev := Event{
		Type:       EventCaptureCompleted,
		Sequence:   j.seq,
		Target:     j.req.Target.String(),
		Descriptor: r.desc,
		Time:       time.Now(),
	}
	if r.err != nil {
		ev.Type = EventCaptureFailed
		ev.Error = r.err.Error()
	}
	s.events.Publish(ev)
}

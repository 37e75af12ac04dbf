package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/ppg"
)

// ErrSourceUnavailable is reported when a sample-driven session has no camera.
var ErrSourceUnavailable = errors.New("no sample source configured")

// Camera hands out exclusive capture streams.
type Camera interface {
	Acquire(ctx context.Context) (Capture, error)
}

// Capture is an acquired stream. Stream blocks, calling emit for each sample,
// until ctx is cancelled or the stream breaks. Release returns the device.
type Capture interface {
	Stream(ctx context.Context, emit func(ppg.Sample)) error
	Release() error
}

// Option configures a Controller.
type Option func(*Controller)

// WithCamera sets the sample source for camera sessions.
func WithCamera(cam Camera) Option {
	return func(c *Controller) { c.camera = cam }
}

// WithSink sets where finalized records go.
func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithObserver registers a callback run on the controller goroutine after every
// change. Observers must not block or call back into the controller synchronously.
func WithObserver(fn func(Update)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type command interface{}

type startCmd struct {
	mode     model.Mode
	protocol model.Protocol
}

type stopCmd struct{}

type failCmd struct {
	err error
}

type beatCmd struct {
	at time.Time
}

type captureReady struct {
	gen     uint64
	capture Capture
}

type captureFailed struct {
	gen uint64
	err error
}

type taggedSample struct {
	gen    uint64
	sample ppg.Sample
}

type captureHandle struct {
	gen     uint64
	capture Capture
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Controller runs a Machine on a single goroutine, owning its timers and the
// camera capture lifecycle. Commands may be sent from any goroutine.
type Controller struct {
	machine   *Machine
	params    model.Params
	camera    Camera
	sink      Sink
	observers []func(Update)
	log       logrus.FieldLogger
	now       func() time.Time

	cmds    chan command
	samples chan taggedSample
	done    chan struct{}

	gen           uint64
	acquireCancel context.CancelFunc
	acquiring     sync.WaitGroup
	handle        *captureHandle
	saveErr       string
}

// NewController builds an idle controller. Call Run to start it.
func NewController(params model.Params, opts ...Option) *Controller {
	buf := params.SampleBufferLength
	if buf <= 0 {
		buf = 1
	}
	c := &Controller{
		machine: NewMachine(params),
		params:  params,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		cmds:    make(chan command, 16),
		samples: make(chan taggedSample, buf),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a session. It is ignored while one is active.
func (c *Controller) Start(mode model.Mode, protocol model.Protocol) {
	c.send(startCmd{mode: mode, protocol: protocol})
}

// StopEarly abandons the active session without saving.
func (c *Controller) StopEarly() {
	c.send(stopCmd{})
}

// RecordBeat registers a tap at the current instant.
func (c *Controller) RecordBeat() {
	c.send(beatCmd{at: c.now()})
}

// RecordBeatAt registers a beat that happened at t.
func (c *Controller) RecordBeatAt(t time.Time) {
	c.send(beatCmd{at: t})
}

// Fail aborts the active session with err, e.g. when an external beat producer
// disconnects. The error is reported once in Update.Err.
func (c *Controller) Fail(err error) {
	c.send(failCmd{err: err})
}

func (c *Controller) send(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

// Run processes commands, samples and deadlines until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	c.publish(Effects{})
	for {
		var timerC <-chan time.Time
		if next, ok := c.machine.NextDeadline(); ok {
			timer.Reset(max(next.Sub(c.now()), 0))
			timerC = timer.C
		} else {
			timer.Stop()
		}
		var captureDone <-chan struct{}
		if c.handle != nil {
			captureDone = c.handle.done
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmds:
			c.dispatch(ctx, cmd)
		case ts := <-c.samples:
			if c.handle == nil || ts.gen != c.handle.gen {
				continue
			}
			c.apply(c.machine.Sample(ts.sample))
		case <-timerC:
			c.apply(c.machine.Tick(c.now()))
		case <-captureDone:
			c.captureEnded()
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, cmd command) {
	now := c.now()
	switch cmd := cmd.(type) {
	case startCmd:
		if c.machine.Phase().Active() {
			return
		}
		c.releaseCapture()
		if !c.machine.Start(now, cmd.mode, cmd.protocol) {
			return
		}
		c.saveErr = ""
		c.log.WithFields(logrus.Fields{"mode": cmd.mode, "protocol": cmd.protocol}).Info("session started")
		if cmd.mode.UsesSamples() {
			if c.camera == nil {
				c.machine.Fail(now, ErrSourceUnavailable)
				c.log.WithError(ErrSourceUnavailable).Warn("session aborted")
			} else {
				c.acquire(ctx)
			}
		}
		c.publish(Effects{Changed: true})
	case stopCmd:
		if c.machine.Stop(now) {
			c.log.Info("session stopped early")
			c.releaseCapture()
			c.publish(Effects{Changed: true})
		}
	case beatCmd:
		c.apply(c.machine.Beat(cmd.at))
	case failCmd:
		c.fail(cmd.err)
	case captureReady:
		if cmd.gen != c.gen || !c.machine.Phase().Active() {
			if err := cmd.capture.Release(); err != nil {
				c.log.WithError(err).Warn("failed to release stale capture")
			}
			return
		}
		c.acquireCancel = nil
		c.stream(ctx, cmd.gen, cmd.capture)
	case captureFailed:
		if cmd.gen != c.gen {
			return
		}
		c.acquireCancel = nil
		c.fail(fmt.Errorf("camera unavailable: %w", cmd.err))
	}
}

func (c *Controller) acquire(ctx context.Context) {
	c.gen++
	gen := c.gen
	actx, cancel := context.WithCancel(ctx)
	c.acquireCancel = cancel
	cam := c.camera
	c.acquiring.Add(1)
	go func() {
		defer c.acquiring.Done()
		capture, err := cam.Acquire(actx)
		var msg command = captureReady{gen: gen, capture: capture}
		if err != nil {
			msg = captureFailed{gen: gen, err: err}
		}
		select {
		case c.cmds <- msg:
		case <-c.done:
			if err == nil {
				_ = capture.Release()
			}
		}
	}()
}

func (c *Controller) stream(ctx context.Context, gen uint64, capture Capture) {
	sctx, cancel := context.WithCancel(ctx)
	h := &captureHandle{gen: gen, capture: capture, cancel: cancel, done: make(chan struct{})}
	c.handle = h
	emit := func(s ppg.Sample) {
		select {
		case c.samples <- taggedSample{gen: gen, sample: s}:
		default:
			// dropped: the consumer is behind
		}
	}
	go func() {
		defer close(h.done)
		h.err = capture.Stream(sctx, emit)
	}()
	c.log.Debug("camera capture running")
}

func (c *Controller) captureEnded() {
	h := c.handle
	err := h.err
	c.releaseCapture()
	if !c.machine.Phase().Active() {
		return
	}
	if err == nil {
		err = errors.New("camera stream ended")
	}
	c.fail(err)
}

func (c *Controller) fail(err error) {
	if c.machine.Fail(c.now(), err) {
		c.log.WithError(err).Warn("session aborted")
		c.releaseCapture()
		c.publish(Effects{Changed: true})
	}
}

func (c *Controller) shutdown() {
	c.releaseCapture()
	close(c.done)
	c.acquiring.Wait()
	for {
		select {
		case cmd := <-c.cmds:
			if ready, ok := cmd.(captureReady); ok {
				_ = ready.capture.Release()
			}
		default:
			return
		}
	}
}

// releaseCapture cancels any pending acquisition, waits for the stream
// goroutine to return and hands the device back.
func (c *Controller) releaseCapture() {
	if c.acquireCancel != nil {
		c.acquireCancel()
		c.acquireCancel = nil
	}
	c.gen++
	h := c.handle
	if h == nil {
		return
	}
	c.handle = nil
	h.cancel()
	<-h.done
	if err := h.capture.Release(); err != nil {
		c.log.WithError(err).Warn("failed to release camera")
	}
	c.log.Debug("camera capture released")
}

func (c *Controller) apply(eff Effects) {
	if !eff.Changed {
		return
	}
	if eff.Record != nil {
		c.save(*eff.Record)
	}
	if !c.machine.Phase().Active() {
		c.releaseCapture()
	}
	c.publish(eff)
}

func (c *Controller) save(rec model.HeartRateRecord) {
	c.log.WithFields(logrus.Fields{"id": rec.ID, "bpm": rec.BPM, "mode": rec.Mode}).Info("session finished")
	if c.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sink.Save(ctx, rec); err != nil {
		c.saveErr = fmt.Sprintf("failed to save record: %v", err)
		c.log.WithError(err).Error("failed to save record")
	}
}

func (c *Controller) publish(eff Effects) {
	u := c.machine.Snapshot()
	u.Pulse = eff.Pulse
	u.Record = eff.Record
	if u.Err == "" && c.saveErr != "" {
		u.Err = c.saveErr
	}
	for _, fn := range c.observers {
		fn(u)
	}
}

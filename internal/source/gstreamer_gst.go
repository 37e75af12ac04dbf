//go:build gst

package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/verte-zerg/pulse/internal/ppg"
	"github.com/verte-zerg/pulse/internal/session"
)

const busPoll = 20 * time.Millisecond

var gstInit sync.Once

// GStreamer is a camera backed by an in-process GStreamer pipeline ending in an appsink.
type GStreamer struct {
	cfg GStreamerConfig
	log logrus.FieldLogger

	mu   sync.Mutex
	busy bool
}

// NewGStreamer initializes GStreamer and returns a pipeline-backed camera.
func NewGStreamer(cfg GStreamerConfig, log logrus.FieldLogger) (session.Camera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	gstInit.Do(func() { gst.Init(nil) })
	return &GStreamer{cfg: cfg, log: log}, nil
}

// Acquire builds the pipeline and sets it playing. The pipeline lives until Release.
func (g *GStreamer) Acquire(ctx context.Context) (session.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return nil, ErrCameraBusy
	}

	launch := g.cfg.Launch()
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("pipeline has no appsink named sink: %w", err)
	}

	c := &gstCapture{
		cam:      g,
		pipeline: pipeline,
		samples:  make(chan ppg.Sample, 8),
	}
	frameSize := g.cfg.Width * g.cfg.Height * bytesPerPixel
	app.SinkFromElement(elem).SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			data := buffer.Map(gst.MapRead).Bytes()
			if len(data) < frameSize {
				buffer.Unmap()
				return gst.FlowOK
			}
			v := RedMean(data, g.cfg.Width, g.cfg.Height, 0)
			buffer.Unmap()
			c.frames.Add(1)
			select {
			case c.samples <- ppg.Sample{At: time.Now(), Value: v}:
			default:
			}
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	g.busy = true
	g.log.WithField("pipeline", launch).Debug("camera pipeline started")
	return c, nil
}

type gstCapture struct {
	cam      *GStreamer
	pipeline *gst.Pipeline
	samples  chan ppg.Sample
	frames   atomic.Uint64

	once sync.Once
}

func (c *gstCapture) Stream(ctx context.Context, emit func(ppg.Sample)) error {
	bus := c.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-c.samples:
			emit(s)
			continue
		default:
		}
		msg := bus.TimedPop(busPoll)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if c.frames.Load() == 0 {
				return ErrNoFrames
			}
			return errors.New("camera stream ended")
		case gst.MessageError:
			return fmt.Errorf("gstreamer: %s", msg.ParseError().Error())
		}
	}
}

func (c *gstCapture) Release() error {
	err := ErrCaptureClosed
	c.once.Do(func() {
		if serr := c.pipeline.SetState(gst.StateNull); serr != nil {
			c.cam.log.WithError(serr).Debug("failed to stop pipeline")
		}
		c.cam.mu.Lock()
		c.cam.busy = false
		c.cam.mu.Unlock()
		err = nil
	})
	return err
}

package source

import (
	"errors"
	"strings"
)

// DefaultPipeline captures a V4L2 webcam as BGRA frames into an appsink named "sink".
const DefaultPipeline = "v4l2src device=/dev/video0 ! videoconvert ! videoscale ! videorate ! " +
	"video/x-raw,format=BGRA,width={width},height={height},framerate={fps}/1 ! " +
	"appsink name=sink sync=false max-buffers=1 drop=true"

// ErrGStreamerUnavailable is returned by builds without the gst tag.
var ErrGStreamerUnavailable = errors.New("gstreamer support not compiled in (rebuild with -tags gst)")

// GStreamerConfig describes an in-process capture pipeline.
type GStreamerConfig struct {
	Pipeline string
	Width    int
	Height   int
	FPS      int
}

// Launch returns the pipeline description with placeholders expanded.
func (c GStreamerConfig) Launch() string {
	p := c.Pipeline
	if strings.TrimSpace(p) == "" {
		p = DefaultPipeline
	}
	return expandPlaceholders(p, c.Width, c.Height, c.FPS)
}

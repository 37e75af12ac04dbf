//go:build !gst

package source

import (
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/pulse/internal/session"
)

// NewGStreamer reports that this build carries no GStreamer support.
func NewGStreamer(_ GStreamerConfig, _ logrus.FieldLogger) (session.Camera, error) {
	return nil, ErrGStreamerUnavailable
}

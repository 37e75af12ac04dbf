// Package source provides the sample and beat producers that feed a session:
// camera frame readers, a simulated camera and a BLE heart-rate strap.
package source

import "errors"

var (
	// ErrNoFrames is returned when a camera stream ends before delivering a frame.
	ErrNoFrames = errors.New("no frames received")
	// ErrCaptureClosed is returned when a capture is released twice.
	ErrCaptureClosed = errors.New("capture already released")
	// ErrCameraBusy is returned when a camera is acquired while another capture holds it.
	ErrCameraBusy = errors.New("camera busy")
)

const (
	bytesPerPixel = 4
	redOffset     = 2
	gridStep      = 8
)

// RedMean averages the red channel of a BGRA frame, sampling every 8th pixel of every
// 8th row. A stride of zero means tightly packed rows.
func RedMean(frame []byte, width, height, stride int) float64 {
	if stride <= 0 {
		stride = width * bytesPerPixel
	}
	var sum float64
	var n int
	for y := 0; y < height; y += gridStep {
		row := y * stride
		for x := 0; x < width; x += gridStep {
			i := row + x*bytesPerPixel + redOffset
			if i >= len(frame) {
				break
			}
			sum += float64(frame[i])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

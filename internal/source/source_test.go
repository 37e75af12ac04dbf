package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/ppg"
)

func bgraFrame(width, height int, red func(x, y int) byte) []byte {
	frame := make([]byte, width*height*bytesPerPixel)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * bytesPerPixel
			frame[i] = 10
			frame[i+1] = 20
			frame[i+2] = red(x, y)
			frame[i+3] = 255
		}
	}
	return frame
}

func TestRedMeanSamplesGrid(t *testing.T) {
	// red is 200 on the sampled grid and 0 everywhere else
	frame := bgraFrame(16, 16, func(x, y int) byte {
		if x%8 == 0 && y%8 == 0 {
			return 200
		}
		return 0
	})
	if got := RedMean(frame, 16, 16, 0); got != 200 {
		t.Fatalf("expected 200, got %v", got)
	}
}

func TestRedMeanHonoursStride(t *testing.T) {
	width, height, stride := 8, 16, 8*bytesPerPixel+16
	frame := make([]byte, stride*height)
	frame[2] = 100
	frame[8*stride+2] = 50
	if got := RedMean(frame, width, height, stride); got != 75 {
		t.Fatalf("expected 75, got %v", got)
	}
}

func TestRedMeanEmptyFrame(t *testing.T) {
	if got := RedMean(nil, 16, 16, 0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestReadFrames(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []byte{100, 120, 140} {
		buf.Write(bgraFrame(8, 8, func(int, int) byte { return v }))
	}
	var got []float64
	err := ReadFrames(&buf, 8, 8, func(v float64) { got = append(got, v) })
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after the last frame, got %v", err)
	}
	if len(got) != 3 || got[0] != 100 || got[2] != 140 {
		t.Fatalf("unexpected samples: %v", got)
	}
}

func TestReadFramesWithoutData(t *testing.T) {
	err := ReadFrames(bytes.NewReader([]byte{1, 2, 3}), 8, 8, func(float64) {})
	if !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}
}

func TestCommandArgv(t *testing.T) {
	cam := NewCommand(CommandConfig{Command: "ffmpeg -s {width}x{height} -r {fps} -", Width: 640, Height: 480, FPS: 30}, nil)
	argv := cam.Argv()
	want := []string{"ffmpeg", "-s", "640x480", "-r", "30", "-"}
	if len(argv) != len(want) {
		t.Fatalf("unexpected argv: %v", argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("unexpected argv: %v", argv)
		}
	}
}

func TestCommandRejectsBadSize(t *testing.T) {
	cam := NewCommand(CommandConfig{Width: 0, Height: 480}, nil)
	if _, err := cam.Acquire(context.Background()); err == nil {
		t.Fatalf("expected an error for a zero width")
	}
}

func TestPPGSimPeaksMatchRate(t *testing.T) {
	const fps = 60
	for _, bpm := range []float64{60, 72, 90, 120} {
		sim := NewPPGSim(fps, bpm, 0.3)
		proc := ppg.NewProcessor(model.DefaultParams())
		base := time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC)

		var starts []int
		prev := -2
		for i := 0; i < 20*fps; i++ {
			s := ppg.Sample{At: base.Add(time.Duration(i) * time.Second / fps), Value: sim.Next()}
			if _, ok := proc.Process(s); ok {
				if i != prev+1 {
					starts = append(starts, i)
				}
				prev = i
			}
		}
		if len(starts) < 10 {
			t.Fatalf("bpm %v: expected periodic peaks, got %v", bpm, starts)
		}
		want := 60 * fps / bpm
		for i := 2; i < len(starts); i++ {
			if d := float64(starts[i] - starts[i-1]); math.Abs(d-want) > 1 {
				t.Fatalf("bpm %v: peak spacing %v, want %v", bpm, d, want)
			}
		}
	}
}

func TestSimulatedSingleOwner(t *testing.T) {
	cam := NewSimulated(60, 72)
	capture, err := cam.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := cam.Acquire(context.Background()); !errors.Is(err, ErrCameraBusy) {
		t.Fatalf("expected ErrCameraBusy, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n := 0
	err = capture.Stream(ctx, func(ppg.Sample) { n++ })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the stream to end with its context, got %v", err)
	}
	if n == 0 {
		t.Fatalf("expected samples")
	}

	if err := capture.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := capture.Release(); !errors.Is(err, ErrCaptureClosed) {
		t.Fatalf("expected ErrCaptureClosed, got %v", err)
	}
	again, err := cam.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected the camera to be free after release: %v", err)
	}
	_ = again.Release()
}

func TestGStreamerLaunchExpandsDefault(t *testing.T) {
	launch := GStreamerConfig{Width: 160, Height: 120, FPS: 25}.Launch()
	for _, want := range []string{"width=160", "height=120", "framerate=25/1", "appsink name=sink"} {
		if !strings.Contains(launch, want) {
			t.Fatalf("launch %q missing %q", launch, want)
		}
	}
	custom := GStreamerConfig{Pipeline: "videotestsrc ! video/x-raw,width={width} ! appsink name=sink", Width: 8}.Launch()
	if custom != "videotestsrc ! video/x-raw,width=8 ! appsink name=sink" {
		t.Fatalf("unexpected custom launch %q", custom)
	}
}

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/pulse/internal/ppg"
	"github.com/verte-zerg/pulse/internal/session"
)

// DefaultCommand reads a V4L2 webcam through ffmpeg as raw BGRA frames on stdout.
const DefaultCommand = "ffmpeg -hide_banner -loglevel error -f v4l2 -framerate {fps} " +
	"-video_size {width}x{height} -i /dev/video0 -f rawvideo -pix_fmt bgra -"

// CommandConfig describes an external frame producer.
type CommandConfig struct {
	Command string
	Width   int
	Height  int
	FPS     int
}

// Command is a camera backed by an external process writing raw BGRA frames.
type Command struct {
	cfg CommandConfig
	log logrus.FieldLogger

	mu   sync.Mutex
	busy bool
}

// NewCommand returns a process-backed camera.
func NewCommand(cfg CommandConfig, log logrus.FieldLogger) *Command {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultCommand
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Command{cfg: cfg, log: log}
}

// Argv expands the {width}, {height} and {fps} placeholders and splits the command.
func (c *Command) Argv() []string {
	return strings.Fields(expandPlaceholders(c.cfg.Command, c.cfg.Width, c.cfg.Height, c.cfg.FPS))
}

func expandPlaceholders(tmpl string, width, height, fps int) string {
	r := strings.NewReplacer(
		"{width}", strconv.Itoa(width),
		"{height}", strconv.Itoa(height),
		"{fps}", strconv.Itoa(fps),
	)
	return r.Replace(tmpl)
}

// Acquire starts the producer process. The process lives until Release.
func (c *Command) Acquire(ctx context.Context) (session.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.cfg.Width <= 0 || c.cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", c.cfg.Width, c.cfg.Height)
	}
	argv := c.Argv()
	if len(argv) == 0 {
		return nil, errors.New("empty camera command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, ErrCameraBusy
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open camera output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	c.busy = true
	c.log.WithFields(logrus.Fields{"command": argv[0], "pid": cmd.Process.Pid}).Debug("camera process started")
	return &commandCapture{cam: c, cmd: cmd, stdout: stdout}, nil
}

type commandCapture struct {
	cam    *Command
	cmd    *exec.Cmd
	stdout io.ReadCloser

	once sync.Once
}

func (c *commandCapture) Stream(ctx context.Context, emit func(ppg.Sample)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.cmd.Process.Kill()
	})
	defer stop()

	err := ReadFrames(c.stdout, c.cam.cfg.Width, c.cam.cfg.Height, func(v float64) {
		emit(ppg.Sample{At: time.Now(), Value: v})
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *commandCapture) Release() error {
	err := ErrCaptureClosed
	c.once.Do(func() {
		_ = c.cmd.Process.Kill()
		if werr := c.cmd.Wait(); werr != nil {
			c.cam.log.WithError(werr).Debug("camera process exited")
		}
		c.cam.mu.Lock()
		c.cam.busy = false
		c.cam.mu.Unlock()
		err = nil
	})
	return err
}

// ReadFrames reads tightly packed BGRA frames from r and reports the red mean of each
// until r fails.
func ReadFrames(r io.Reader, width, height int, fn func(float64)) error {
	frame := make([]byte, width*height*bytesPerPixel)
	frames := 0
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			if frames == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				return ErrNoFrames
			}
			return fmt.Errorf("camera stream ended after %d frames: %w", frames, err)
		}
		frames++
		fn(RedMean(frame, width, height, 0))
	}
}

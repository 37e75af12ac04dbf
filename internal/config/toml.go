// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Session SessionConfig `toml:"session"`
	Camera  CameraConfig  `toml:"camera"`
	BLE     BLEConfig     `toml:"ble"`
	Relay   RelayConfig   `toml:"relay"`
	Live    LiveConfig    `toml:"live"`
	Log     LogConfig     `toml:"log"`
}

// SessionConfig maps measurement settings.
type SessionConfig struct {
	Mode        *string `toml:"mode"`
	Protocol    *string `toml:"protocol"`
	FinalWindow *string `toml:"final-window"`
}

// CameraConfig maps camera capture settings.
type CameraConfig struct {
	Source   *string  `toml:"source"`
	Command  *string  `toml:"command"`
	Pipeline *string  `toml:"pipeline"`
	Width    *int     `toml:"width"`
	Height   *int     `toml:"height"`
	FPS      *int     `toml:"fps"`
	SimBPM   *float64 `toml:"sim-bpm"`
}

// BLEConfig maps heart-rate strap settings.
type BLEConfig struct {
	Address *string `toml:"address"`
}

// RelayConfig maps NATS publishing settings.
type RelayConfig struct {
	NATSURL *string `toml:"nats-url"`
	Subject *string `toml:"subject"`
	Codec   *string `toml:"codec"`
}

// LiveConfig maps the WebSocket broadcast settings.
type LiveConfig struct {
	Addr *string `toml:"addr"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Template is written by `pulse config` when no file exists yet.
const Template = `# pulse configuration. Command-line flags override these values.

[session]
# mode = "tap"              # tap, camera or strap
# protocol = "simple"       # simple or calibrated
# final-window = "measuring" # measuring or measuring+preview

[camera]
# source = "command"        # command, gstreamer or simulated
# command = "ffmpeg -hide_banner -loglevel error -f v4l2 -framerate {fps} -video_size {width}x{height} -i /dev/video0 -f rawvideo -pix_fmt bgra -"
# pipeline = "v4l2src device=/dev/video0 ! videoconvert ! videoscale ! videorate ! video/x-raw,format=BGRA,width={width},height={height},framerate={fps}/1 ! appsink name=sink sync=false max-buffers=1 drop=true"
# width = 320
# height = 240
# fps = 30
# sim-bpm = 72.0

[ble]
# address = ""              # empty connects to the first heart-rate strap found

[relay]
# nats-url = ""             # e.g. nats://127.0.0.1:4222
# subject = "heartrate.records"
# codec = "json"            # json or msgpack

[live]
# addr = ""                 # e.g. :8080

[log]
# level = "info"
# file = ""
`

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// ErrStrapNotFound is returned when no matching heart-rate strap advertised.
var ErrStrapNotFound = errors.New("no heart-rate strap found")

// Measurement is a decoded GATT Heart Rate Measurement notification.
type Measurement struct {
	HeartRate        int
	ContactSupported bool
	Contact          bool
	EnergyExpended   int
	RR               []time.Duration
}

const (
	flagHR16          = 0x01
	flagContact       = 0x02
	flagContactSupp   = 0x04
	flagEnergy        = 0x08
	flagRR            = 0x10
	rrUnitsPerSecond  = 1024
	rrResyncTolerance = 2 * time.Second
)

// ParseMeasurement decodes the flags, heart rate, energy and RR interval fields.
func ParseMeasurement(b []byte) (Measurement, error) {
	var m Measurement
	if len(b) < 2 {
		return m, fmt.Errorf("short heart rate measurement: %d bytes", len(b))
	}
	flags := b[0]
	i := 1
	if flags&flagHR16 != 0 {
		if len(b) < 3 {
			return m, errors.New("truncated 16-bit heart rate")
		}
		m.HeartRate = int(binary.LittleEndian.Uint16(b[i:]))
		i += 2
	} else {
		m.HeartRate = int(b[i])
		i++
	}
	m.ContactSupported = flags&flagContactSupp != 0
	m.Contact = flags&flagContact != 0
	if flags&flagEnergy != 0 {
		if len(b) < i+2 {
			return m, errors.New("truncated energy expended")
		}
		m.EnergyExpended = int(binary.LittleEndian.Uint16(b[i:]))
		i += 2
	}
	if flags&flagRR != 0 {
		for ; i+1 < len(b); i += 2 {
			raw := binary.LittleEndian.Uint16(b[i:])
			m.RR = append(m.RR, time.Duration(raw)*time.Second/rrUnitsPerSecond)
		}
	}
	return m, nil
}

// RRTracker turns measurement notifications into beat timestamps. RR intervals are
// chained from the previous beat; the chain is re-anchored on the arrival time when it
// drifts too far from it. Without RR data, beats are paced from the reported rate.
type RRTracker struct {
	last time.Time
}

// Beats returns the beat instants described by m, received at now.
func (t *RRTracker) Beats(now time.Time, m Measurement) []time.Time {
	if len(m.RR) == 0 {
		return t.fromRate(now, m.HeartRate)
	}
	var total time.Duration
	for _, rr := range m.RR {
		total += rr
	}

	var out []time.Time
	at := t.last
	if at.IsZero() {
		at = now.Add(-total)
		out = append(out, at)
	} else if drift := now.Sub(at.Add(total)); drift > rrResyncTolerance || drift < -rrResyncTolerance {
		// never re-anchor behind the last emitted beat
		if anchor := now.Add(-total); anchor.After(at) {
			at = anchor
		}
	}
	for _, rr := range m.RR {
		at = at.Add(rr)
		out = append(out, at)
	}
	t.last = at
	return out
}

func (t *RRTracker) fromRate(now time.Time, hr int) []time.Time {
	if hr <= 0 {
		return nil
	}
	period := time.Minute / time.Duration(hr)
	if t.last.IsZero() || now.Sub(t.last) > period+rrResyncTolerance {
		t.last = now
		return []time.Time{now}
	}
	var out []time.Time
	for next := t.last.Add(period); !next.After(now); next = next.Add(period) {
		out = append(out, next)
		t.last = next
	}
	return out
}

// StrapDevice is an advertising heart-rate sensor.
type StrapDevice struct {
	Address string
	Name    string
	RSSI    int16
}

// Strap is a BLE heart-rate strap beat producer.
type Strap struct {
	adapter *bluetooth.Adapter
	address string
	log     logrus.FieldLogger
}

// NewStrap returns a strap bound to the default adapter. An empty address
// connects to the first device advertising the heart-rate service.
func NewStrap(address string, log logrus.FieldLogger) *Strap {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Strap{adapter: bluetooth.DefaultAdapter, address: strings.TrimSpace(address), log: log}
}

// Run connects to the strap and reports beats until ctx is cancelled.
func (s *Strap) Run(ctx context.Context, beat func(time.Time)) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
	}
	result, err := s.find(ctx)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"address": result.Address.String(), "name": result.LocalName()})

	dev, err := s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect to strap: %w", err)
	}
	defer func() {
		if derr := dev.Disconnect(); derr != nil {
			log.WithError(derr).Debug("disconnect failed")
		}
	}()

	services, err := dev.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDHeartRate})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("failed to discover heart rate service: %w", errors.Join(err, ErrStrapNotFound))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.CharacteristicUUIDHeartRateMeasurement})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("failed to discover heart rate measurement: %w", errors.Join(err, ErrStrapNotFound))
	}

	var mu sync.Mutex
	var tracker RRTracker
	err = chars[0].EnableNotifications(func(buf []byte) {
		m, perr := ParseMeasurement(buf)
		if perr != nil {
			log.WithError(perr).Debug("dropping measurement")
			return
		}
		mu.Lock()
		beats := tracker.Beats(time.Now(), m)
		mu.Unlock()
		for _, at := range beats {
			beat(at)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to heart rate: %w", err)
	}
	log.Info("strap connected")
	<-ctx.Done()
	return nil
}

func (s *Strap) matches(r bluetooth.ScanResult) bool {
	if s.address != "" {
		return strings.EqualFold(r.Address.String(), s.address)
	}
	return r.HasServiceUUID(bluetooth.ServiceUUIDHeartRate)
}

func (s *Strap) find(ctx context.Context) (bluetooth.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return bluetooth.ScanResult{}, err
	}
	found := make(chan bluetooth.ScanResult, 1)
	stop := context.AfterFunc(ctx, func() {
		_ = s.adapter.StopScan()
	})
	defer stop()

	err := s.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if !s.matches(r) {
			return
		}
		select {
		case found <- r:
		default:
		}
		_ = a.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("failed to scan: %w", err)
	}
	select {
	case r := <-found:
		return r, nil
	default:
	}
	if ctx.Err() != nil {
		return bluetooth.ScanResult{}, ctx.Err()
	}
	return bluetooth.ScanResult{}, ErrStrapNotFound
}

// ScanStraps lists devices advertising the heart-rate service for the given duration,
// strongest signal first.
func ScanStraps(ctx context.Context, d time.Duration) ([]StrapDevice, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		_ = adapter.StopScan()
	})
	defer stop()

	var mu sync.Mutex
	seen := map[string]StrapDevice{}
	err := adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if !r.HasServiceUUID(bluetooth.ServiceUUIDHeartRate) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		addr := r.Address.String()
		dev := seen[addr]
		dev.Address = addr
		dev.RSSI = r.RSSI
		if name := r.LocalName(); name != "" {
			dev.Name = name
		}
		seen[addr] = dev
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]StrapDevice, 0, len(seen))
	for _, dev := range seen {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

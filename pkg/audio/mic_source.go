package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// micQueueCapacity is the bounded channel size the capture callback feeds.
// Overflow drops the oldest chunk rather than blocking the audio callback,
// since blocking inside malgo's callback starves the device.
const micQueueCapacity = 10

// MicrophoneSourceConfig configures a MicrophoneSource.
type MicrophoneSourceConfig struct {
	DeviceIndex *int // nil selects the default device
	SampleRate  int  // default 16000
	ChunkMs     int  // default 100
}

// MicrophoneSource is an AudioSource backed by a live capture device via
// malgo, following the same duplex-device/callback-driven pattern the
// teacher's CLI agent uses, generalized to a pull-based Source and a
// bounded channel instead of a single hand-rolled playback loop.
type MicrophoneSource struct {
	cfg MicrophoneSourceConfig

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	active bool

	chunks chan Chunk
	errc   chan error
}

// NewMicrophoneSource constructs a MicrophoneSource. The device is opened
// lazily in Open.
func NewMicrophoneSource(cfg MicrophoneSourceConfig) *MicrophoneSource {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkMs == 0 {
		cfg.ChunkMs = 100
	}
	return &MicrophoneSource{cfg: cfg}
}

func (m *MicrophoneSource) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	chunkSamples := m.cfg.SampleRate * m.cfg.ChunkMs / 1000
	m.chunks = make(chan Chunk, micQueueCapacity)
	m.errc = make(chan error, 1)

	var residual []byte
	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		residual = append(residual, pInput...)
		frameBytes := chunkSamples * 2
		for len(residual) >= frameBytes {
			frame := residual[:frameBytes]
			residual = residual[frameBytes:]

			chunk := Chunk{Samples: PCM16ToFloat(frame), SampleRate: m.cfg.SampleRate}
			select {
			case m.chunks <- chunk:
			default:
				// queue full: drop oldest to make room, never block the
				// audio callback
				select {
				case <-m.chunks:
				default:
				}
				select {
				case m.chunks <- chunk:
				default:
				}
			}
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		mctx.Uninit()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	m.mctx = mctx
	m.device = device
	m.active = true
	return nil
}

func (m *MicrophoneSource) Next(ctx context.Context) (Chunk, error) {
	m.mu.Lock()
	chunks := m.chunks
	errc := m.errc
	active := m.active
	m.mu.Unlock()

	if !active {
		return Chunk{}, fmt.Errorf("audio: microphone source not open")
	}

	select {
	case c := <-chunks:
		return c, nil
	case err := <-errc:
		return Chunk{}, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (m *MicrophoneSource) SampleRate() int { return m.cfg.SampleRate }

func (m *MicrophoneSource) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *MicrophoneSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil
	}
	m.active = false
	if m.device != nil {
		m.device.Uninit()
	}
	if m.mctx != nil {
		m.mctx.Uninit()
	}
	return nil
}

// ListDevices enumerates available capture devices.
func ListDevices() ([]Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer mctx.Uninit()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	out := make([]Device, 0, len(infos))
	for i, info := range infos {
		out = append(out, Device{
			Index:      i,
			Name:       info.Name(),
			Channels:   1,
			SampleRate: 16000,
			IsDefault:  info.IsDefault != 0,
		})
	}
	return out, nil
}

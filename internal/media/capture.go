package media

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// frameBytes is ~100ms of 16 kHz mono PCM16 per frame.
const frameBytes = CaptureRate * 2 / 10

// MicSource captures microphone audio through malgo and emits fixed
// size PCM frames.
type MicSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	frames chan []byte

	mu      sync.Mutex
	pending []byte
	closed  bool
}

// NewMicSource opens the default capture device at 16 kHz mono.
func NewMicSource() (*MicSource, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &MicSource{
		ctx:    ctx,
		frames: make(chan []byte, 16),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.push(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	return m, nil
}

func (m *MicSource) push(input []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, input...)
	var out [][]byte
	for len(m.pending) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, m.pending)
		m.pending = m.pending[frameBytes:]
		out = append(out, frame)
	}
	m.mu.Unlock()

	for _, frame := range out {
		select {
		case m.frames <- frame:
		default:
			// Consumer is behind; dropping capture beats blocking the
			// audio callback.
		}
	}
}

// Frames returns the captured frame channel.
func (m *MicSource) Frames() <-chan []byte {
	return m.frames
}

// Close stops the device and closes the frame channel.
func (m *MicSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
	}
	close(m.frames)
	return nil
}

package hardware

import (
	"fmt"
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// PinWrite records one WriteDigital or ConfigureOutput call on a Fake.
type PinWrite struct {
	Pin   int
	Level bool
}

// Fake is an in-memory GPIO. Inputs are driven with SetLevel and SetAnalog;
// outputs are observed with Level and Writes.
type Fake struct {
	mu       sync.Mutex
	modes    map[int]PinMode
	levels   map[int]bool
	analog   map[int]uint16
	readErr  map[int]error
	writeErr map[int]error
	writes   []PinWrite

	// OnRead, if set, runs before every digital or analog read, outside
	// the fake's own lock.
	OnRead func(pin int)
}

var _ GPIO = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		modes:    make(map[int]PinMode),
		levels:   make(map[int]bool),
		analog:   make(map[int]uint16),
		readErr:  make(map[int]error),
		writeErr: make(map[int]error),
	}
}

func (f *Fake) ConfigureInput(pin int, pullUp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[pin]; err != nil {
		return err
	}
	if _, set := f.levels[pin]; !set && pullUp {
		f.levels[pin] = true
	}
	f.modes[pin] = PinInput
	return nil
}

func (f *Fake) ConfigureOutput(pin int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[pin]; err != nil {
		return err
	}
	f.modes[pin] = PinOutput
	f.levels[pin] = level
	f.writes = append(f.writes, PinWrite{Pin: pin, Level: level})
	return nil
}

func (f *Fake) ConfigureAnalog(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[pin]; err != nil {
		return err
	}
	f.modes[pin] = PinAnalog
	return nil
}

func (f *Fake) ReadDigital(pin int) (bool, error) {
	if f.OnRead != nil {
		f.OnRead(pin)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readErr[pin]; err != nil {
		return false, err
	}
	if f.modes[pin] == PinUnconfigured || f.modes[pin] == PinAnalog {
		return false, fmt.Errorf("pin %d is %s: %w", pin, f.modes[pin], types.ErrInvalidState)
	}
	return f.levels[pin], nil
}

func (f *Fake) WriteDigital(pin int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.writeErr[pin]; err != nil {
		return err
	}
	if f.modes[pin] != PinOutput {
		return fmt.Errorf("pin %d is %s: %w", pin, f.modes[pin], types.ErrInvalidState)
	}
	f.levels[pin] = level
	f.writes = append(f.writes, PinWrite{Pin: pin, Level: level})
	return nil
}

func (f *Fake) ReadAnalog(pin int) (uint16, error) {
	if f.OnRead != nil {
		f.OnRead(pin)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readErr[pin]; err != nil {
		return 0, err
	}
	if f.modes[pin] != PinAnalog {
		return 0, fmt.Errorf("pin %d is %s: %w", pin, f.modes[pin], types.ErrInvalidState)
	}
	return f.analog[pin], nil
}

// SetLevel drives an input pin.
func (f *Fake) SetLevel(pin int, level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = level
}

func (f *Fake) SetAnalog(pin int, code uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analog[pin] = code
}

// FailReads makes every read of pin return err. A nil err clears it.
func (f *Fake) FailReads(pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.readErr, pin)
		return
	}
	f.readErr[pin] = err
}

// FailWrites makes configuration and writes of pin return err.
func (f *Fake) FailWrites(pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.writeErr, pin)
		return
	}
	f.writeErr[pin] = err
}

func (f *Fake) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func (f *Fake) Mode(pin int) PinMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modes[pin]
}

func (f *Fake) Writes() []PinWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PinWrite(nil), f.writes...)
}

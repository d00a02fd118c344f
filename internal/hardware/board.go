package hardware

// Board routes digital pins to one backend and analog pins to another, so a
// GPIO character device can be paired with an external ADC.
type Board struct {
	digital GPIO
	analog  AnalogReader
}

var _ GPIO = (*Board)(nil)

// NewBoard combines digital with analog. A nil analog falls back to the
// digital backend's own analog support.
func NewBoard(digital GPIO, analog AnalogReader) *Board {
	if analog == nil {
		analog = digital
	}
	return &Board{digital: digital, analog: analog}
}

func (b *Board) ConfigureInput(pin int, pullUp bool) error {
	return b.digital.ConfigureInput(pin, pullUp)
}

func (b *Board) ConfigureOutput(pin int, level bool) error {
	return b.digital.ConfigureOutput(pin, level)
}

func (b *Board) ConfigureAnalog(pin int) error {
	return b.analog.ConfigureAnalog(pin)
}

func (b *Board) ReadDigital(pin int) (bool, error) {
	return b.digital.ReadDigital(pin)
}

func (b *Board) WriteDigital(pin int, level bool) error {
	return b.digital.WriteDigital(pin, level)
}

func (b *Board) ReadAnalog(pin int) (uint16, error) {
	return b.analog.ReadAnalog(pin)
}

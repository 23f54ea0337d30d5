package charlcd

// Direction is the data bus direction as seen from the driver.
// The zero value is Released.
type Direction struct {
	drive bool
	value byte
}

// Drive returns a direction that actively drives v onto the bus.
func Drive(v byte) Direction { return Direction{drive: true, value: v} }

// Released is the high-impedance direction: the pins must not be driven and
// the bus is sampled instead.
var Released = Direction{}

// Driven reports whether the bus is being driven.
func (d Direction) Driven() bool { return d.drive }

// Value returns the driven byte; ok is false when released.
func (d Direction) Value() (v byte, ok bool) { return d.value, d.drive }

func (d Direction) String() string {
	if !d.drive {
		return "released"
	}
	const hexd = "0123456789abcdef"
	return "drive(0x" + string([]byte{hexd[d.value>>4], hexd[d.value&0x0f]}) + ")"
}

// Signals is the physical-facing projection of the driver registers.
type Signals struct {
	Busy bool
	E    bool
	RW   bool // true = read
	RS   bool // true = data register
	Dir  Direction
}

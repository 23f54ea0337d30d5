package lcdmodel

// Instruction opcodes, by highest set bit.
const (
	opClear    = 0x01
	opHome     = 0x02
	opEntry    = 0x04
	opDisplay  = 0x08
	opShift    = 0x10
	opFunction = 0x20
	opCGRAM    = 0x40
	opDDRAM    = 0x80
)

// exec runs one instruction and returns its busy duration.
func (m *Model) exec(v byte) uint32 {
	switch {
	case v&opDDRAM != 0:
		m.cgMode = false
		m.ac = m.wrapDD(v &^ opDDRAM)
	case v&opCGRAM != 0:
		m.cgMode = true
		m.ac = v & 0x3F
	case v&opFunction != 0:
		m.twoLines = v&0x08 != 0
	case v&opShift != 0:
		if v&0x08 == 0 { // cursor move; display shift is not modelled
			m.move(v&0x04 != 0)
		}
	case v&opDisplay != 0:
		m.display = v&0x04 != 0
		m.cursor = v&0x02 != 0
		m.blink = v&0x01 != 0
	case v&opEntry != 0:
		m.inc = v&0x02 != 0
	case v&opHome != 0:
		m.cgMode = false
		m.ac = 0
		return m.t.Long
	case v&opClear != 0:
		m.clear()
		return m.t.Long
	}
	return m.t.Exec
}

func (m *Model) clear() {
	for l := range m.ddram {
		for c := range m.ddram[l] {
			m.ddram[l][c] = ' '
		}
	}
	m.ac = 0
	m.cgMode = false
	m.inc = true
}

func (m *Model) writeData(v byte) {
	if m.cgMode {
		m.cgram[m.ac&0x3F] = v
	} else {
		l, c := m.cell()
		m.ddram[l][c] = v
	}
	m.step()
}

func (m *Model) readData() byte {
	if m.cgMode {
		return m.cgram[m.ac&0x3F]
	}
	l, c := m.cell()
	return m.ddram[l][c]
}

// step moves the address counter after a data access.
func (m *Model) step() { m.move(m.inc) }

func (m *Model) move(right bool) {
	if m.cgMode {
		if right {
			m.ac = (m.ac + 1) & 0x3F
		} else {
			m.ac = (m.ac - 1) & 0x3F
		}
		return
	}
	if right {
		m.ac = m.wrapDD(m.ac + 1)
		return
	}
	switch m.ac {
	case 0x00:
		if m.twoLines {
			m.ac = line2Base + lineLen - 1
		} else {
			m.ac = 2*lineLen - 1
		}
	case line2Base:
		m.ac = lineLen - 1
	default:
		m.ac--
	}
}

// wrapDD folds a DDRAM address into the valid ranges for the line mode.
func (m *Model) wrapDD(a byte) byte {
	a &= 0x7F
	if !m.twoLines {
		if a >= 2*lineLen {
			return 0
		}
		return a
	}
	switch {
	case a < lineLen:
		return a
	case a < line2Base:
		return line2Base
	case a < line2Base+lineLen:
		return a
	default:
		return 0
	}
}

// cell maps the address counter to a DDRAM cell. In one-line mode the
// 80 bytes are laid out as two consecutive rows of 40.
func (m *Model) cell() (line, col int) {
	a := int(m.ac)
	if m.twoLines {
		if a >= line2Base {
			return 1, a - line2Base
		}
		return 0, a
	}
	return a / lineLen, a % lineLen
}

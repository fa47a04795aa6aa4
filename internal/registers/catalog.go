// internal/registers/catalog.go
package registers

import (
	"errors"
	"fmt"
)

// SourceKind selects the Modbus table a descriptor is read from.
type SourceKind uint8

const (
	Holding SourceKind = 3 // FC 3
	Input   SourceKind = 4 // FC 4
)

func (s SourceKind) String() string {
	switch s {
	case Holding:
		return "holding"
	case Input:
		return "input"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// ValueKind selects how a raw register is decoded.
type ValueKind uint8

const (
	// FixedPointOneDecimal is a sign-magnitude value scaled by 10.
	// 0xFFFF means "no reading".
	FixedPointOneDecimal ValueKind = iota + 1

	// Bitfield16 carries 16 independent flags, bit 0 first.
	Bitfield16
)

func (k ValueKind) String() string {
	switch k {
	case FixedPointOneDecimal:
		return "fixed1"
	case Bitfield16:
		return "bitfield16"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Descriptor describes one register of interest.
// Bits is only meaningful for Bitfield16, index 0 = least-significant bit.
type Descriptor struct {
	Address uint16
	Source  SourceKind
	Kind    ValueKind
	Name    string
	Bits    [16]string
}

// Decimals returns the decimal exponent of fixed-point kinds.
func (d Descriptor) Decimals() int {
	if d.Kind == FixedPointOneDecimal {
		return 1
	}
	return 0
}

// ---- compiled catalog ----

var catalog = []Descriptor{
	{Address: 601, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_external"},
	{Address: 602, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_boiler"},
	{Address: 603, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_tank"},
	{Address: 605, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_circuit_b"},
	{Address: 606, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_circuit_c"},
	{Address: 610, Source: Holding, Kind: FixedPointOneDecimal, Name: "pressure"},
	{Address: 614, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_ambiant_circuit_a"},
	{Address: 616, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_ambiant_circuit_b"},
	{Address: 618, Source: Holding, Kind: FixedPointOneDecimal, Name: "temperature_ambiant_circuit_c"},
	{Address: 700, Source: Holding, Kind: Bitfield16, Name: "bits_base", Bits: [16]string{
		"io_pump_aux",
		"io_pump_boiler_1",
		"io_burner_1_2",
		"io_burner_1_1",
		"io_pump_a",
		"io_pump_ecs",
		"io_alarm_burner_1",
		"io_diematic",
		"io_switch_isolation_1",
		"io_boiler_mod_1",
		"io_burner_6_2",
		"io_burner_6_1",
		"io_burner_5_2",
		"io_burner_5_1",
		"io_burner_4_2",
		"io_burner_4_1",
	}},
	{Address: 701, Source: Holding, Kind: Bitfield16, Name: "bits_terminal_2", Bits: [16]string{
		"io_burner_2_1",
		"io_burner_2_2",
		"io_pump_boiler_2",
		"io_alarm_burner_2",
		"io_unknown_duree_2_1",
		"io_unknown_duree_2_2",
		"io_unknown_duree_1_1",
		"io_board_detected_k11",
		"io_switch_isolation_2",
		"io_boiler_mod_2",
		"io_burner_9_2",
		"io_burner_9_1",
		"io_burner_8_2",
		"io_burner_8_1",
		"io_burner_7_2",
		"io_burner_7_1",
	}},
}

// Catalog returns a copy of the compiled register catalog, in poll order.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Validate checks catalog invariants.
// It performs declarative validation only.
func Validate(c []Descriptor) error {
	if len(c) == 0 {
		return errors.New("registers: empty catalog")
	}

	seen := make(map[uint16]string, len(c))
	names := make(map[string]uint16)

	// output names become document keys and must not collide
	claim := func(name string, addr uint16) error {
		if prev, dup := names[name]; dup {
			return fmt.Errorf("registers: output name %q used at %d and %d", name, prev, addr)
		}
		names[name] = addr
		return nil
	}

	for i, d := range c {
		if prev, dup := seen[d.Address]; dup {
			return fmt.Errorf("registers: address %d used by %q and %q", d.Address, prev, d.Name)
		}
		seen[d.Address] = d.Name

		if d.Source != Holding && d.Source != Input {
			return fmt.Errorf("registers: entry %d (%s): unsupported source %s", i, d.Name, d.Source)
		}

		switch d.Kind {
		case FixedPointOneDecimal:
			if d.Name == "" {
				return fmt.Errorf("registers: entry %d (addr=%d): name required", i, d.Address)
			}
			if err := claim(d.Name, d.Address); err != nil {
				return err
			}
		case Bitfield16:
			for b, label := range d.Bits {
				if label == "" {
					return fmt.Errorf("registers: entry %d (addr=%d): bit %d has no label", i, d.Address, b)
				}
				if err := claim(label, d.Address); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("registers: entry %d (addr=%d): unsupported kind %s", i, d.Address, d.Kind)
		}
	}

	return nil
}

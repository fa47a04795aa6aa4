// internal/registers/decode.go
package registers

import "math"

// Absent is the raw value the controller reports when it has no reading.
const Absent uint16 = 0xFFFF

// Field is one named output value: float64 for fixed-point, bool for flags.
type Field struct {
	Name  string
	Value any
}

// Flag is one decoded bit of a bitfield register.
type Flag struct {
	Name string
	Set  bool
}

// DecodeFixedPoint decodes a sign-magnitude register.
// ok is false when raw is the Absent sentinel.
func DecodeFixedPoint(raw uint16, decimals int) (value float64, ok bool) {
	// sentinel before sign extraction: 0xFFFF would otherwise read as -3276.7
	if raw == Absent {
		return 0, false
	}

	v := float64(raw & 0x7FFF)
	if raw>>15 == 1 {
		v = -v
	}

	return v / math.Pow10(decimals), true
}

// DecodeBitfield maps bit i of raw to labels[i]. Always 16 entries.
func DecodeBitfield(raw uint16, labels [16]string) []Flag {
	out := make([]Flag, 16)
	for i := 0; i < 16; i++ {
		out[i] = Flag{
			Name: labels[i],
			Set:  (raw>>uint(i))&1 == 1,
		}
	}
	return out
}

// Decode returns the fields a descriptor contributes for one raw sample.
// An absent fixed-point value contributes nothing.
func Decode(d Descriptor, raw uint16) []Field {
	switch d.Kind {
	case FixedPointOneDecimal:
		v, ok := DecodeFixedPoint(raw, d.Decimals())
		if !ok {
			return nil
		}
		return []Field{{Name: d.Name, Value: v}}

	case Bitfield16:
		flags := DecodeBitfield(raw, d.Bits)
		out := make([]Field, 0, len(flags))
		for _, f := range flags {
			out = append(out, Field{Name: f.Name, Value: f.Set})
		}
		return out

	default:
		return nil
	}
}

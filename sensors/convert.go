package sensors

import (
	"github.com/chewxy/math32"
)

// Callendar-Van Dusen coefficients for platinum RTDs (IEC 60751).
const (
	rtdA float32 = 3.9083e-3
	rtdB float32 = -5.775e-7
)

// RTD converts a MAX31865 15-bit ratio code into degrees Celsius.
type RTD struct {
	RefOhms     float32 // reference resistor on the converter board
	NominalOhms float32 // R0: 100 for PT100, 1000 for PT1000
}

func (RTD) Unit() string { return "degC" }

func (c RTD) Convert(raw []uint16) (float32, error) {
	if len(raw) < 1 {
		return 0, ErrShortReading
	}
	code := float32(raw[0] & 0x7FFF)
	rt := code * c.RefOhms / 32768
	return c.temperature(rt), nil
}

// Resistance is the inverse used by the simulator: R(T) for T >= 0, extended below zero with
// the same quadratic.
func (c RTD) Resistance(tempC float32) float32 {
	return c.NominalOhms * (1 + rtdA*tempC + rtdB*tempC*tempC)
}

// Code returns the 15-bit ratio code the converter would report at tempC.
func (c RTD) Code(tempC float32) uint16 {
	code := c.Resistance(tempC) / c.RefOhms * 32768
	if code < 0 {
		return 0
	}
	if code > 0x7FFF {
		return 0x7FFF
	}
	return uint16(math32.Round(code))
}

func (c RTD) temperature(rt float32) float32 {
	z1 := -rtdA
	z2 := rtdA*rtdA - 4*rtdB
	z3 := 4 * rtdB / c.NominalOhms
	z4 := 2 * rtdB

	t := (z1 + math32.Sqrt(z2+z3*rt)) / z4
	if t >= 0 {
		return t
	}

	// Below 0 degC the quadratic no longer holds; fall back to the polynomial fit on a
	// resistance normalized to 100 ohm.
	r := rt / c.NominalOhms * 100
	p := r
	t = -242.02
	t += 2.2228 * p
	p *= r
	t += 2.5859e-3 * p
	p *= r
	t -= 4.8260e-6 * p
	p *= r
	t -= 2.8183e-8 * p
	p *= r
	t += 1.5243e-10 * p
	return t
}

// TSL2591 converts the full-spectrum and infrared photodiode counts into W/m^2 using the
// responsivity figures of the datasheet at low gain and 100 ms integration.
type TSL2591 struct{}

const (
	tslFullResponsivity = 6024 // counts per uW/cm^2
	tslIRResponsivity   = 1003 // counts per uW/cm^2
)

func (TSL2591) Unit() string { return "W/m2" }

func (TSL2591) Convert(raw []uint16) (float32, error) {
	if len(raw) < 2 {
		return 0, ErrShortReading
	}
	full := float32(raw[0]) / tslFullResponsivity
	ir := float32(raw[1]) / tslIRResponsivity
	// uW/cm^2 -> W/m^2 is a factor of 10^-6 * 10^4
	return (full + ir) / 2 * 10, nil
}

// Counts is the inverse used by the simulator.
func (TSL2591) Counts(wm2 float32) []uint16 {
	uw := wm2 / 10
	return []uint16{clampCount(uw * tslFullResponsivity), clampCount(uw * tslIRResponsivity)}
}

func clampCount(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 0xFFFF {
		return 0xFFFF
	}
	return uint16(math32.Round(v))
}

// Band is the range a physical value must fall strictly inside to be reported as valid.
// A zero Band accepts every finite value.
type Band struct {
	Min float32
	Max float32
}

func (b Band) Contains(v float32) bool {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return false
	}
	if b.Min == 0 && b.Max == 0 {
		return true
	}
	return v > b.Min && v < b.Max
}

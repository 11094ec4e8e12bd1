package profile

import "module/internal/config"

// ConvertUnit returns a copy of the profile with StartTemp, segment
// targets, and numeric rates converted to the requested unit. MAX/COOL
// rates are unit-agnostic identities (§3). Conversion is idempotent:
// converting an already-matching unit is a no-op copy.
func (p *Profile) ConvertUnit(to config.TemperatureUnit) *Profile {
	if p.Unit == to {
		cp := *p
		cp.Segments = append([]Segment(nil), p.Segments...)
		return &cp
	}
	out := &Profile{
		Name:          p.Name,
		Unit:          to,
		StartTemp:     ConvertTemp(p.StartTemp, p.Unit, to),
		Segments:      make([]Segment, len(p.Segments)),
		sourceVersion: p.sourceVersion,
		doc:           p.doc,
	}
	for i, seg := range p.Segments {
		out.Segments[i] = Segment{
			Rate:        convertRate(seg.Rate, p.Unit, to),
			Target:      ConvertTemp(seg.Target, p.Unit, to),
			HoldSeconds: seg.HoldSeconds,
		}
	}
	return out
}

// ConvertTemp converts a single temperature value between units.
func ConvertTemp(t float64, from, to config.TemperatureUnit) float64 {
	if from == to {
		return t
	}
	if from == config.Fahrenheit && to == config.Celsius {
		return (t - 32) * 5 / 9
	}
	// Celsius -> Fahrenheit
	return t*9/5 + 32
}

func convertRate(r Rate, from, to config.TemperatureUnit) Rate {
	if r.Kind != RateNumeric || from == to {
		return r
	}
	if from == config.Fahrenheit && to == config.Celsius {
		return NumericRate(r.Value * 5 / 9)
	}
	return NumericRate(r.Value * 9 / 5)
}

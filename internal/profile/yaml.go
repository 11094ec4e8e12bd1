package profile

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"module/internal/config"
	"module/internal/kilnerr"
)

// document wraps the original parsed YAML mapping node so that unknown
// fields survive a load -> Serialize round trip (§6.3: "Unknown fields
// are preserved on round-trip but not interpreted").
type document struct {
	mapping *yaml.Node
}

// Load parses a profile file (§6.3), detecting v1 vs v2 by the presence
// of a "version: 2" field, and normalises either form to Segments.
func Load(data []byte) (*Profile, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s", kilnerr.ErrInvalidProfile, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", kilnerr.ErrInvalidProfile)
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: profile document is not a mapping", kilnerr.ErrInvalidProfile)
	}

	name, _ := mapStringField(mapping, "name")
	unit := unitFromMapping(mapping)

	versionNode := mapGet(mapping, "version")
	isV2 := versionNode != nil && strings.TrimSpace(versionNode.Value) == "2"

	var p *Profile
	var err error
	if isV2 {
		p, err = loadV2(mapping, name, unit)
	} else {
		p, err = loadV1(mapping, name, unit)
	}
	if err != nil {
		return nil, err
	}
	p.doc = &document{mapping: mapping}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func unitFromMapping(mapping *yaml.Node) config.TemperatureUnit {
	if v, ok := mapStringField(mapping, "temp_units"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "c":
			return config.Celsius
		case "f":
			return config.Fahrenheit
		}
	}
	// Open question (a): untagged profiles are stored in Fahrenheit,
	// matching v1's historical default (§3, §9).
	return config.Fahrenheit
}

func loadV2(mapping *yaml.Node, name string, unit config.TemperatureUnit) (*Profile, error) {
	startTemp, _ := mapFloatField(mapping, "start_temp")
	segsNode := mapGet(mapping, "segments")
	if segsNode == nil || segsNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: v2 profile missing segments", kilnerr.ErrInvalidProfile)
	}
	segments := make([]Segment, 0, len(segsNode.Content))
	for _, sn := range segsNode.Content {
		if sn.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: segment entry is not a mapping", kilnerr.ErrInvalidProfile)
		}
		rateNode := mapGet(sn, "rate")
		if rateNode == nil {
			return nil, fmt.Errorf("%w: segment missing rate", kilnerr.ErrInvalidProfile)
		}
		rate, err := parseRate(rateNode)
		if err != nil {
			return nil, err
		}
		target, ok := mapFloatField(sn, "target")
		if !ok {
			return nil, fmt.Errorf("%w: segment missing target", kilnerr.ErrInvalidProfile)
		}
		holdMinutes, _ := mapFloatField(sn, "hold")
		segments = append(segments, Segment{
			Rate:        rate,
			Target:      target,
			HoldSeconds: holdMinutes * 60,
		})
	}
	return &Profile{
		Name:          name,
		Unit:          unit,
		StartTemp:     startTemp,
		Segments:      segments,
		sourceVersion: 2,
	}, nil
}

func parseRate(n *yaml.Node) (Rate, error) {
	tag := strings.ToUpper(strings.TrimSpace(n.Value))
	switch tag {
	case "MAX":
		return MaxRate(), nil
	case "COOL":
		return CoolRate(), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: rate %q is neither numeric nor MAX/COOL", kilnerr.ErrInvalidProfile, n.Value)
	}
	return NumericRate(f), nil
}

func loadV1(mapping *yaml.Node, name string, unit config.TemperatureUnit) (*Profile, error) {
	dataNode := mapGet(mapping, "data")
	if dataNode == nil || dataNode.Kind != yaml.SequenceNode || len(dataNode.Content) == 0 {
		return nil, fmt.Errorf("%w: v1 profile missing data points", kilnerr.ErrInvalidProfile)
	}
	type point struct{ t, temp float64 }
	points := make([]point, 0, len(dataNode.Content))
	for _, pn := range dataNode.Content {
		if pn.Kind != yaml.SequenceNode || len(pn.Content) != 2 {
			return nil, fmt.Errorf("%w: v1 data point must be [time, temp]", kilnerr.ErrInvalidProfile)
		}
		t, err1 := strconv.ParseFloat(strings.TrimSpace(pn.Content[0].Value), 64)
		temp, err2 := strconv.ParseFloat(strings.TrimSpace(pn.Content[1].Value), 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: v1 data point is not numeric", kilnerr.ErrInvalidProfile)
		}
		points = append(points, point{t: t, temp: temp})
	}
	if points[0].t != 0 {
		return nil, fmt.Errorf("%w: v1 profile must start at time 0", kilnerr.ErrInvalidProfile)
	}

	segments := make([]Segment, 0, len(points))
	for i := 1; i < len(points); i++ {
		dt := points[i].t - points[i-1].t
		if dt < 0 {
			return nil, fmt.Errorf("%w: v1 time values must be non-decreasing", kilnerr.ErrInvalidProfile)
		}
		dTemp := points[i].temp - points[i-1].temp
		if dTemp == 0 {
			if len(segments) == 0 {
				segments = append(segments, Segment{Rate: NumericRate(0), Target: points[i].temp, HoldSeconds: dt})
			} else {
				segments[len(segments)-1].HoldSeconds += dt
			}
			continue
		}
		ratePerHour := 0.0
		if dt > 0 {
			ratePerHour = dTemp / dt * 3600
		}
		segments = append(segments, Segment{Rate: NumericRate(ratePerHour), Target: points[i].temp, HoldSeconds: 0})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: v1 profile has only one point", kilnerr.ErrInvalidProfile)
	}
	return &Profile{
		Name:          name,
		Unit:          unit,
		StartTemp:     points[0].temp,
		Segments:      segments,
		sourceVersion: 1,
	}, nil
}

// Serialize re-emits the profile in its original wire format (v1 or
// v2), preserving unknown fields carried on the document node. A
// programmatically constructed Profile (doc == nil) is always emitted
// as v2.
func (p *Profile) Serialize() ([]byte, error) {
	var mapping *yaml.Node
	if p.doc != nil {
		mapping = cloneNode(p.doc.mapping)
	} else {
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	setMapString(mapping, "name", p.Name)
	setMapString(mapping, "temp_units", string(p.Unit))

	if p.sourceVersion == 1 && p.doc != nil {
		setMapField(mapping, "data", v1DataNode(p))
	} else {
		setMapString(mapping, "version", "2")
		setMapFloat(mapping, "start_temp", p.StartTemp)
		setMapField(mapping, "segments", v2SegmentsNode(p))
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	return yaml.Marshal(doc)
}

func v1DataNode(p *Profile) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	t := 0.0
	cur := p.StartTemp
	seq.Content = append(seq.Content, pointNode(t, cur))
	for _, seg := range p.Segments {
		if seg.Rate.Kind == RateNumeric && seg.Rate.Value != 0 {
			dt := 0.0
			if seg.Rate.Value != 0 {
				dt = (seg.Target - cur) / seg.Rate.Value * 3600
			}
			t += dt
			cur = seg.Target
			seq.Content = append(seq.Content, pointNode(t, cur))
		}
		if seg.HoldSeconds > 0 {
			t += seg.HoldSeconds
			seq.Content = append(seq.Content, pointNode(t, cur))
		}
	}
	return seq
}

func pointNode(t, temp float64) *yaml.Node {
	return &yaml.Node{
		Kind: yaml.SequenceNode,
		Tag:  "!!seq",
		Content: []*yaml.Node{
			scalarFloat(t),
			scalarFloat(temp),
		},
	}
}

func v2SegmentsNode(p *Profile) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, seg := range p.Segments {
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var rateNode *yaml.Node
		switch seg.Rate.Kind {
		case RateMax:
			rateNode = scalarString("MAX")
		case RateCool:
			rateNode = scalarString("COOL")
		default:
			rateNode = scalarFloat(seg.Rate.Value)
		}
		m.Content = append(m.Content,
			scalarString("rate"), rateNode,
			scalarString("target"), scalarFloat(seg.Target),
			scalarString("hold"), scalarFloat(seg.HoldSeconds/60),
		)
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func scalarFloat(f float64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(f, 'g', -1, 64)}
}

func scalarString(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// --- mapping-node helpers ---

func mapGet(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func mapStringField(mapping *yaml.Node, key string) (string, bool) {
	n := mapGet(mapping, key)
	if n == nil {
		return "", false
	}
	return n.Value, true
}

func mapFloatField(mapping *yaml.Node, key string) (float64, bool) {
	n := mapGet(mapping, key)
	if n == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func setMapField(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content, scalarString(key), value)
}

func setMapString(mapping *yaml.Node, key, value string) {
	setMapField(mapping, key, scalarString(value))
}

func setMapFloat(mapping *yaml.Node, key string, value float64) {
	setMapField(mapping, key, scalarFloat(value))
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		cp.Content[i] = cloneNode(c)
	}
	return &cp
}

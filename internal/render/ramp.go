package render

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// RGB is a plain 8-bit color.
type RGB struct {
	R, G, B uint8
}

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex parses a #rrggbb color string.
func ParseHex(s string) (RGB, error) {
	var c RGB
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

type stop struct {
	at    float64
	color RGB
}

// Ramp maps a normalized elevation in [0,1] to a fill color by linear
// interpolation between stops. Max caps the input before lookup; ramps
// whose top end is unusable for print (washes out to white) set it
// below 1.
type Ramp struct {
	Name  string
	Max   float64
	stops []stop
}

// Color returns the interpolated color for a normalized value.
func (r *Ramp) Color(norm float64) RGB {
	if norm < 0 {
		norm = 0
	}
	if norm > r.Max {
		norm = r.Max
	}

	s := r.stops
	if norm <= s[0].at {
		return s[0].color
	}
	for i := 1; i < len(s); i++ {
		if norm <= s[i].at {
			span := s[i].at - s[i-1].at
			t := 0.0
			if span > 0 {
				t = (norm - s[i-1].at) / span
			}
			return lerp(s[i-1].color, s[i].color, t)
		}
	}
	return s[len(s)-1].color
}

func lerp(a, b RGB, t float64) RGB {
	return RGB{
		R: uint8(float64(a.R) + (float64(b.R)-float64(a.R))*t + 0.5),
		G: uint8(float64(a.G) + (float64(b.G)-float64(a.G))*t + 0.5),
		B: uint8(float64(a.B) + (float64(b.B)-float64(a.B))*t + 0.5),
	}
}

func mustRamp(name string, max float64, stops map[float64]string) *Ramp {
	r := &Ramp{Name: name, Max: max}
	for at, hex := range stops {
		c, err := ParseHex(hex)
		if err != nil {
			panic(err)
		}
		r.stops = append(r.stops, stop{at: at, color: c})
	}
	sort.Slice(r.stops, func(i, j int) bool { return r.stops[i].at < r.stops[j].at })
	return r
}

// Built-in ramps. "terrain" caps at 0.75 because its upper quarter
// fades to white, which prints as nothing.
var builtinRamps = map[string]*Ramp{
	"terrain": mustRamp("terrain", 0.75, map[float64]string{
		0.00: "#333399",
		0.15: "#0099ff",
		0.25: "#00cc66",
		0.50: "#ffff99",
		0.75: "#805b55",
		1.00: "#ffffff",
	}),
	"topo": mustRamp("topo", 1.0, map[float64]string{
		0.00: "#2d6e2d",
		0.30: "#7ab648",
		0.55: "#d4c84a",
		0.75: "#c47a30",
		1.00: "#5c2e0a",
	}),
}

// RampByName looks up a built-in ramp.
func RampByName(name string) (*Ramp, error) {
	r, ok := builtinRamps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q", name)
	}
	return r, nil
}

// RampNames lists the built-in ramp names, sorted.
func RampNames() []string {
	names := make([]string, 0, len(builtinRamps))
	for name := range builtinRamps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type rampFile struct {
	Ramps []struct {
		Name  string  `yaml:"name"`
		Max   float64 `yaml:"max"`
		Stops []struct {
			At    float64 `yaml:"at"`
			Color string  `yaml:"color"`
		} `yaml:"stops"`
	} `yaml:"ramps"`
}

// LoadRamps reads extra color ramps from a YAML file and merges them
// over the built-ins. A ramp with a built-in's name replaces it.
func LoadRamps(path string) (map[string]*Ramp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ramp config %s: %w", path, err)
	}
	var file rampFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse ramp config %s: %w", path, err)
	}

	out := make(map[string]*Ramp, len(builtinRamps)+len(file.Ramps))
	for name, r := range builtinRamps {
		out[name] = r
	}
	for _, def := range file.Ramps {
		if def.Name == "" {
			return nil, fmt.Errorf("ramp config %s: ramp without a name", path)
		}
		if len(def.Stops) < 2 {
			return nil, fmt.Errorf("ramp %q: need at least two stops", def.Name)
		}
		r := &Ramp{Name: def.Name, Max: def.Max}
		if r.Max <= 0 || r.Max > 1 {
			r.Max = 1
		}
		for _, s := range def.Stops {
			c, err := ParseHex(s.Color)
			if err != nil {
				return nil, fmt.Errorf("ramp %q: %w", def.Name, err)
			}
			r.stops = append(r.stops, stop{at: s.At, color: c})
		}
		sort.Slice(r.stops, func(i, j int) bool { return r.stops[i].at < r.stops[j].at })
		out[def.Name] = r
	}
	return out, nil
}

// Package thermal queries CPU temperature and fan speed by shelling out
// to the istats command-line tool.
package thermal

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/kawashima/loadlog/internal/errors"
)

const defaultBinary = "istats"

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	rpmPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*RPM`)
)

// Prober queries the thermal state of the machine. Readings may be
// partial; callers must check the validity flags.
type Prober interface {
	Probe(ctx context.Context) (Reading, error)
}

// Reading is one thermal observation. A false validity flag marks a
// field istats did not report.
type Reading struct {
	TemperatureC float64
	TempValid    bool
	FanRPM       float64
	FanValid     bool
}

type istatsProber struct {
	path string
}

// New returns a Prober backed by the istats tool, verifying that the
// binary is installed.
func New() (Prober, error) {
	return NewWithBinary(defaultBinary)
}

// NewWithBinary is like New with an explicit binary name or path.
func NewWithBinary(binary string) (Prober, error) {
	errFactory := errors.New()

	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errFactory.WithData(ErrToolNotFound, binary)
	}

	return &istatsProber{path: path}, nil
}

func (p *istatsProber) Probe(ctx context.Context) (Reading, error) {
	errFactory := errors.New()

	out, err := exec.CommandContext(ctx, p.path).Output()
	if err != nil {
		return Reading{}, errFactory.Wrap(ErrProbeFailed, err)
	}

	return parseOutput(string(out)), nil
}

// parseOutput extracts CPU temperatures and fan speeds from istats
// output. istats reports one line per CPU sensor and one per fan;
// temperatures are averaged and the first fan's speed is kept.
func parseOutput(out string) Reading {
	var reading Reading

	var temps []float64
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "CPU"):
			if v, ok := firstNumber(line); ok {
				temps = append(temps, v)
			}
		case strings.HasPrefix(line, "Fan"):
			if reading.FanValid {
				continue
			}
			// "Fan 0 speed: 2159 RPM": anchor on the RPM unit so the
			// fan index is never mistaken for the speed
			if v, ok := rpmNumber(line); ok {
				reading.FanRPM = v
				reading.FanValid = true
			}
		}
	}

	if len(temps) > 0 {
		sum := 0.0
		for _, t := range temps {
			sum += t
		}
		reading.TemperatureC = sum / float64(len(temps))
		reading.TempValid = true
	}

	return reading
}

func firstNumber(line string) (float64, bool) {
	return parseNumber(numberPattern.FindString(line))
}

func rpmNumber(line string) (float64, bool) {
	match := rpmPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	return parseNumber(match[1])
}

func parseNumber(match string) (float64, bool) {
	if match == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}


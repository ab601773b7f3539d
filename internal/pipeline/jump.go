package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// JumpPoint is one scheduled seek: when playback clock time reaches
// AtSeconds, the driver jumps to ToSeconds.
type JumpPoint struct {
	AtSeconds float64
	ToSeconds float64
}

// JumpScenario is an ordered list of seeks, ordered by AtSeconds.
type JumpScenario []JumpPoint

// ParseJumpScenario parses the CLI's "a->b,c->d" syntax (the Unicode arrow
// "→" is also accepted) into an ordered JumpScenario.
func ParseJumpScenario(s string) (JumpScenario, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var scenario JumpScenario
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var sep string
		switch {
		case strings.Contains(part, "->"):
			sep = "->"
		case strings.Contains(part, "→"):
			sep = "→"
		default:
			return nil, fmt.Errorf("pipeline: malformed jump scenario entry %q", part)
		}
		halves := strings.SplitN(part, sep, 2)
		if len(halves) != 2 {
			return nil, fmt.Errorf("pipeline: malformed jump scenario entry %q", part)
		}
		at, err := strconv.ParseFloat(strings.TrimSpace(halves[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("pipeline: bad at_seconds in %q: %w", part, err)
		}
		to, err := strconv.ParseFloat(strings.TrimSpace(halves[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("pipeline: bad to_seconds in %q: %w", part, err)
		}
		scenario = append(scenario, JumpPoint{AtSeconds: at, ToSeconds: to})
	}
	for i := 1; i < len(scenario); i++ {
		if scenario[i].AtSeconds < scenario[i-1].AtSeconds {
			return nil, fmt.Errorf("pipeline: jump scenario entries must be ordered by at_seconds")
		}
	}
	return scenario, nil
}

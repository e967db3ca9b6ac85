package main

import (
	"embed"
	"fmt"
	"strings"

	"github.com/banshee-data/benchscope/internal/config"
)

// Recorded instrument output replayed in dev mode. The capacitance firmware
// ends each report with a bare carriage return.
//
//go:embed fixtures/*.txt
var fixtures embed.FS

// loadFixtures returns the dev mode lines for mode, each keeping its
// terminator.
func loadFixtures(mode string) ([]string, error) {
	var name string
	switch mode {
	case config.ModeWaveform:
		name = "fixtures/waveform.txt"
	case config.ModeCapacitance:
		name = "fixtures/capacitance.txt"
	default:
		return nil, fmt.Errorf("no fixtures for mode %q", mode)
	}
	data, err := fixtures.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, l := range strings.SplitAfter(string(data), "\n") {
		for _, part := range strings.SplitAfter(l, "\r") {
			if strings.TrimSpace(part) != "" {
				lines = append(lines, part)
			}
		}
	}
	return lines, nil
}

package ingest

import (
	"strconv"

	"github.com/devicepubs/curator/internal/pmc"
)

const (
	// DefaultFloorYear is where full-history searches start.
	DefaultFloorYear = 1990
	// DefaultWindowYears is the width of each search window. Windowing
	// keeps individual queries under the source's result-count ceiling.
	DefaultWindowYears = 5
)

// Window is an inclusive year range for one windowed search.
type Window struct {
	From int
	To   int
}

// DateRange converts the window to E-utilities date bounds.
func (w Window) DateRange() *pmc.DateRange {
	return &pmc.DateRange{Min: strconv.Itoa(w.From), Max: strconv.Itoa(w.To)}
}

// yearWindows partitions [floor, current] into fixed-width windows. The last
// window is clipped to the current year, so for floor 1990, width 5 and
// current year 2025 the result is [1990-1994] ... [2020-2024] [2025-2025].
func yearWindows(floor, current, width int) []Window {
	if width <= 0 {
		width = DefaultWindowYears
	}
	var windows []Window
	for from := floor; from <= current; from += width {
		to := from + width - 1
		if to > current {
			to = current
		}
		windows = append(windows, Window{From: from, To: to})
	}
	return windows
}

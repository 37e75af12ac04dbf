package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

type dash struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisLabelWidth      = 3
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var dashes = []dash{
	{name: "solid", period: 1, on: 1},
	{name: "dotted", period: 4, on: 1},
	{name: "dashed", period: 6, on: 3},
}

var palette = []string{"\x1b[31m", "\x1b[36m", "\x1b[33m"}

// PlotSeries renders a braille plot of all series on one shared BPM scale.
func PlotSeries(w io.Writer, title string, series []Series, width, height int) error {
	return PlotSeriesWithColor(w, title, series, width, height, false)
}

// PlotSeriesWithColor renders the plot with optional forced color output.
func PlotSeriesWithColor(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	var kept []Series
	for _, s := range series {
		if len(s.Values) > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range kept {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if hi-lo < 2 {
		lo--
		hi++
	}

	dots := height * 4
	layers := make([][][]uint8, len(kept))
	for i, s := range kept {
		cells := make([][]uint8, height)
		for y := range cells {
			cells[y] = make([]uint8, width)
		}
		d := dashes[i%len(dashes)]
		prevX, prevY := -1, -1
		for x, v := range resample(s.Values, width) {
			px, py := x*2, rowFor(v, lo, hi, dots)
			if prevX < 0 {
				prevX, prevY = px, py
			}
			bresenham(prevX, prevY, px, py, func(dx, dy int) {
				if d.period <= 1 || dx%d.period < d.on {
					setDot(cells, dx, dy)
				}
			})
			prevX, prevY = px, py
		}
		layers[i] = cells
	}

	color := shouldUseColor(w, forceColor)
	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	for y := 0; y < height; y++ {
		label := ""
		switch y {
		case 0:
			label = fmt.Sprintf("%.0f", hi)
		case height / 2:
			label = fmt.Sprintf("%.0f", (hi+lo)/2)
		case height - 1:
			label = fmt.Sprintf("%.0f", lo)
		}
		fmt.Fprintf(&b, "%*s%s", axisLabelWidth, label, axisSeparator)
		for x := 0; x < width; x++ {
			var mask uint8
			owner := -1
			for i, cells := range layers {
				if m := cells[y][x]; m != 0 {
					mask |= m
					if owner < 0 {
						owner = i
					}
				}
			}
			ch := rune(0x2800 + int(mask))
			if color && owner >= 0 {
				b.WriteString(palette[owner%len(palette)])
				b.WriteRune(ch)
				b.WriteString(colorReset)
			} else {
				b.WriteRune(ch)
			}
		}
		b.WriteByte('\n')
	}
	legend := make([]string, len(kept))
	for i, s := range kept {
		item := fmt.Sprintf("%s (%s)", s.Name, dashes[i%len(dashes)].name)
		if color {
			item = palette[i%len(palette)] + item + colorReset
		}
		legend[i] = item
	}
	b.WriteString("Legend: " + strings.Join(legend, "  ") + "\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisLabelWidth-len([]rune(axisSeparator)), minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// resample stretches or bins values to exactly width points.
func resample(values []float64, width int) []float64 {
	out := make([]float64, width)
	n := len(values)
	switch {
	case n == 1:
		for i := range out {
			out[i] = values[0]
		}
	case n > width:
		for i := range out {
			start := i * n / width
			end := max((i+1)*n/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	default:
		for i := range out {
			pos := float64(i) * float64(n-1) / float64(max(width-1, 1))
			idx := min(int(pos), n-2)
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func rowFor(v, lo, hi float64, dots int) int {
	pos := (v - lo) / (hi - lo)
	row := int(math.Round((1 - pos) * float64(dots-1)))
	return max(0, min(row, dots-1))
}

func bresenham(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// dotBits maps a dot position inside a 2x4 braille cell to its bit.
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setDot(cells [][]uint8, x, y int) {
	cy, cx := y/4, x/2
	if y < 0 || x < 0 || cy >= len(cells) || cx >= len(cells[cy]) {
		return
	}
	cells[cy][cx] |= dotBits[x%2][y%4]
}

// Package export renders stored runs for use outside the terminal.
package export

import (
	"fmt"
	"strings"
)

// Series is one trajectory by year.
type Series struct {
	Label  string
	Years  []int
	Values []float64
}

var palette = []string{"#00d7af", "#ffaf00", "#5fafff", "#ff5f87", "#afff5f", "#d787ff"}

// SeriesToSVG draws each series as a polyline on shared axes, with a
// legend in the top left. Series shorter than two points are skipped.
func SeriesToSVG(series []Series, width, height int) string {
	var drawn []Series
	for _, s := range series {
		if len(s.Years) >= 2 && len(s.Years) == len(s.Values) {
			drawn = append(drawn, s)
		}
	}
	if len(drawn) == 0 {
		return ""
	}

	minX, maxX := drawn[0].Years[0], drawn[0].Years[0]
	minY, maxY := drawn[0].Values[0], drawn[0].Values[0]
	for _, s := range drawn {
		for i, y := range s.Years {
			minX = min(minX, y)
			maxX = max(maxX, y)
			minY = min(minY, s.Values[i])
			maxY = max(maxY, s.Values[i])
		}
	}
	if minY > 0 {
		minY = 0
	}

	rangeX := float64(maxX - minX)
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	maxY += rangeY * 0.05
	rangeY = maxY - minY

	const pad = 40.0
	plotW := float64(width) - 2*pad
	plotH := float64(height) - 2*pad

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="#444" stroke-width="1">
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
</g>
<g fill="#888" font-family="monospace" font-size="11">
<text x="%.1f" y="%.1f">%d</text>
<text x="%.1f" y="%.1f" text-anchor="end">%d</text>
<text x="%.1f" y="%.1f">%.4g</text>
</g>
`,
		width, height, width, height,
		pad, pad, pad, pad+plotH,
		pad, pad+plotH, pad+plotW, pad+plotH,
		pad, pad+plotH+15, minX,
		pad+plotW, pad+plotH+15, maxX,
		2.0, pad-5, maxY,
	))

	for n, s := range drawn {
		color := palette[n%len(palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for i, year := range s.Years {
			x := pad + float64(year-minX)/rangeX*plotW
			y := pad + plotH - (s.Values[i]-minY)/rangeY*plotH
			if i == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" fill="%s" font-family="monospace" font-size="12">%s</text>
`, pad+10, pad+15+float64(n)*15, color, escape(s.Label)))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

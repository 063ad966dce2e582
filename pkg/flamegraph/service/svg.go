package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/argus-apm/argus/pkg/flamegraph/model"
	"github.com/argus-apm/argus/pkg/stats"
)

const (
	framePadding  = 1.0
	minFrameWidth = 0.5
	fontSize      = 11
)

// frame fill colors cycled by depth
var depthColors = []string{"#e4572e", "#f3a712", "#a8c686", "#669bbc", "#8e7dbe"}

// ToSVG renders a frame tree as standalone SVG markup. Layout is a pure
// function of the tree: horizontal position and width are proportional to
// start offset and duration, vertical position to depth.
func ToSVG(root *model.Frame, width int, height int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		width, height, width, height,
	))
	sb.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)

	if root != nil && root.DurationMillis > 0 {
		rowHeight := float64(height) / float64(root.MaxDepth()+1)
		writeFrame(&sb, root, root, float64(width), rowHeight)
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}

func writeFrame(
	sb *strings.Builder,
	frame *model.Frame,
	root *model.Frame,
	totalWidth float64,
	rowHeight float64,
) {
	scale := totalWidth / root.DurationMillis
	x := frame.StartOffsetMillis * scale
	w := frame.DurationMillis * scale
	if w < minFrameWidth {
		w = minFrameWidth
	}
	y := float64(frame.Depth) * rowHeight

	label := html.EscapeString(
		fmt.Sprintf("%s (%s)", frame.Name, stats.FormatDuration(frame.DurationMillis)),
	)
	color := depthColors[frame.Depth%len(depthColors)]

	sb.WriteString(fmt.Sprintf(
		`<g><rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" stroke="#ffffff" stroke-width="%.1f"><title>%s</title></rect>`,
		x, y, w, rowHeight-framePadding, color, framePadding, label,
	))
	sb.WriteString(fmt.Sprintf(
		`<text x="%.2f" y="%.2f" font-size="%d" font-family="monospace" fill="#1d1d1d">%s</text></g>`,
		x+2, y+rowHeight/2+float64(fontSize)/3, fontSize, label,
	))

	for _, child := range frame.Children {
		writeFrame(sb, child, root, totalWidth, rowHeight)
	}
}

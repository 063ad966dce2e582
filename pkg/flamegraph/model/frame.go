package model

// Frame is one box of the flame graph. The root frame represents the trace
// itself; its children are the trace's root spans, nested by parent id.
// StartOffsetMillis is relative to the trace start.
type Frame struct {
	Name              string   `json:"name"`
	StartOffsetMillis float64  `json:"start_offset_millis"`
	DurationMillis    float64  `json:"duration_millis"`
	Depth             int      `json:"depth"`
	Children          []*Frame `json:"children,omitempty"`
}

// MaxDepth returns the deepest depth present in the tree rooted at f.
func (f *Frame) MaxDepth() int {
	deepest := f.Depth
	for _, child := range f.Children {
		if d := child.MaxDepth(); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Package render turns an edited timeline into a cloud render request and
// follows the resulting job until it settles.
package render

// The wire types follow the render service's edit schema: a timeline of
// tracks, each a list of clips placed at absolute start offsets. The first
// track is drawn on top.

type Edit struct {
	Timeline Timeline `json:"timeline"`
	Output   Output   `json:"output"`
}

type Timeline struct {
	Background string  `json:"background"`
	Tracks     []Track `json:"tracks"`
}

type Track struct {
	Clips []Clip `json:"clips"`
}

type Clip struct {
	Asset      Asset       `json:"asset"`
	Start      float64     `json:"start"`
	Length     float64     `json:"length"`
	Fit        string      `json:"fit,omitempty"`
	Scale      float64     `json:"scale,omitempty"`
	Opacity    *float64    `json:"opacity,omitempty"`
	Filter     string      `json:"filter,omitempty"`
	Effect     string      `json:"effect,omitempty"`
	Offset     *Offset     `json:"offset,omitempty"`
	Transition *Transition `json:"transition,omitempty"`
}

type Asset struct {
	Type   string  `json:"type"`
	Src    string  `json:"src"`
	Trim   float64 `json:"trim"`
	Volume float64 `json:"volume"`
}

type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Transition struct {
	In  string `json:"in,omitempty"`
	Out string `json:"out,omitempty"`
}

type Output struct {
	Format      string `json:"format"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspectRatio"`
}

// Response envelopes returned by the render service.

type submitResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response *struct {
		ID string `json:"id"`
	} `json:"response"`
}

type statusResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		URL    string `json:"url"`
		Error  string `json:"error"`
	} `json:"response"`
}

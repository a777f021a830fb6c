package inspector

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ctagard/inspector-mcp/internal/errors"
)

// TransformedRect is a rectangle in local coordinates plus the 4x4
// column-major matrix mapping it to global coordinates.
type TransformedRect struct {
	Left      float64   `json:"left"`
	Top       float64   `json:"top"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Transform []float64 `json:"transform,omitempty"`
}

// UnmarshalJSON accepts both left/top and x/y origins.
func (r *TransformedRect) UnmarshalJSON(data []byte) error {
	var w struct {
		Left      *float64  `json:"left"`
		Top       *float64  `json:"top"`
		X         *float64  `json:"x"`
		Y         *float64  `json:"y"`
		Width     float64   `json:"width"`
		Height    float64   `json:"height"`
		Transform []float64 `json:"transform"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = TransformedRect{Width: w.Width, Height: w.Height, Transform: w.Transform}
	switch {
	case w.Left != nil:
		r.Left = *w.Left
	case w.X != nil:
		r.Left = *w.X
	}
	switch {
	case w.Top != nil:
		r.Top = *w.Top
	case w.Y != nil:
		r.Top = *w.Y
	}
	return nil
}

// Screenshot is a decoded raster image of part of the UI.
type Screenshot struct {
	Image image.Image
	// Encoded holds the original image bytes as sent by the app.
	Encoded []byte
	Format  string
	Rect    TransformedRect
}

// InteractiveScreenshot is a screenshot at a source location together with
// the bounding boxes and elements it shows.
type InteractiveScreenshot struct {
	Screenshot *Screenshot
	Boxes      []*DiagnosticsNode
	Elements   []*DiagnosticsNode
}

type wireScreenshot struct {
	Image           *string          `json:"image"`
	TransformedRect *TransformedRect `json:"transformedRect"`
}

// decodeScreenshot decodes {"image": base64, "transformedRect": {...}}.
// Corrupt image data is an error, never an empty screenshot.
func decodeScreenshot(raw json.RawMessage) (*Screenshot, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var w wireScreenshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.MalformedPayload("screenshot", err)
	}
	if w.Image == nil {
		return nil, errors.MalformedPayload("screenshot", fmt.Errorf("missing image"))
	}

	encoded, err := base64.StdEncoding.DecodeString(*w.Image)
	if err != nil {
		return nil, errors.DecodeFailed("image", err)
	}
	img, format, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.DecodeFailed("image", err)
	}

	shot := &Screenshot{Image: img, Encoded: encoded, Format: format}
	if w.TransformedRect != nil {
		shot.Rect = *w.TransformedRect
	}
	return shot, nil
}

type wireInteractiveScreenshot struct {
	Screenshot json.RawMessage `json:"screenshot"`
	Boxes      json.RawMessage `json:"boxes"`
	Elements   json.RawMessage `json:"elements"`
}

func decodeInteractiveScreenshot(raw json.RawMessage, group *ObjectGroup) (*InteractiveScreenshot, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var w wireInteractiveScreenshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.MalformedPayload("interactive screenshot", err)
	}
	shot, err := decodeScreenshot(w.Screenshot)
	if err != nil {
		return nil, err
	}
	boxes, err := decodeNodes(w.Boxes, group, nil)
	if err != nil {
		return nil, err
	}
	elements, err := decodeNodes(w.Elements, group, nil)
	if err != nil {
		return nil, err
	}
	return &InteractiveScreenshot{Screenshot: shot, Boxes: boxes, Elements: elements}, nil
}

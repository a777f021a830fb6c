package inspector

import (
	"encoding/json"
	"testing"

	"github.com/ctagard/inspector-mcp/internal/errors"
)

// TestDecodeScreenshot_RoundTrip verifies a 1x1 PNG and its rectangle decode.
func TestDecodeScreenshot_RoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"image":"` + onePixelPNG(t) + `","transformedRect":{"x":0,"y":0,"width":1,"height":1}}`)

	shot, err := decodeScreenshot(raw)
	if err != nil {
		t.Fatalf("decodeScreenshot: %v", err)
	}
	if b := shot.Image.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("bounds = %v", b)
	}
	if shot.Format != "png" {
		t.Errorf("format = %q", shot.Format)
	}
	if r := shot.Rect; r.Left != 0 || r.Top != 0 || r.Width != 1 || r.Height != 1 {
		t.Errorf("rect = %+v", r)
	}
	if len(shot.Encoded) == 0 {
		t.Error("encoded bytes should be kept")
	}
}

// TestDecodeScreenshot_Errors verifies corrupt images fail instead of
// producing an empty screenshot.
func TestDecodeScreenshot_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code errors.ErrorCode
	}{
		{"bad base64", `{"image":"***"}`, errors.CodeDecodeFailed},
		{"not an image", `{"image":"aGVsbG8="}`, errors.CodeDecodeFailed},
		{"missing image", `{"transformedRect":{}}`, errors.CodeMalformedPayload},
		{"not an object", `[1,2]`, errors.CodeMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeScreenshot(json.RawMessage(tt.raw))
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}

	shot, err := decodeScreenshot(json.RawMessage("null"))
	if shot != nil || err != nil {
		t.Errorf("null payload = %v, %v", shot, err)
	}
}

// TestTransformedRect_Origins verifies both origin spellings.
func TestTransformedRect_Origins(t *testing.T) {
	var r TransformedRect
	if err := json.Unmarshal([]byte(`{"left":3,"top":4,"width":5,"height":6,"transform":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1]}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.Left != 3 || r.Top != 4 || r.Width != 5 || r.Height != 6 || len(r.Transform) != 16 {
		t.Errorf("unexpected rect %+v", r)
	}

	if err := json.Unmarshal([]byte(`{"x":7,"y":8,"width":1,"height":1}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.Left != 7 || r.Top != 8 || r.Transform != nil {
		t.Errorf("unexpected rect %+v", r)
	}
}

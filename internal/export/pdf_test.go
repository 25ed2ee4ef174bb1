package export

import (
	"bytes"
	"testing"

	"whiteboard/internal/models"
)

func sampleSnapshot() *models.Snapshot {
	stroke := models.Element{
		ID:      "s",
		Kind:    models.KindStroke,
		Style:   models.Style{StrokeColor: "#ff0000", StrokeWidth: 3, Opacity: 1},
		Payload: models.Payload{Points: []models.Point{{X: 10, Y: 10}, {X: 50, Y: 80}, {X: 90, Y: 20}}},
	}
	circle := models.Element{
		ID:       "c",
		Kind:     models.KindShape,
		Geometry: models.Geometry{X: 100, Y: 100, Width: 80, Height: 40, Angle: 30, ScaleX: 1, ScaleY: 2},
		Style:    models.Style{StrokeColor: "#00f", FillColor: "#0f0", Opacity: 0.5},
		Payload:  models.Payload{Shape: models.ShapeCircle},
	}
	arrow := models.Element{
		ID:       "a",
		Kind:     models.KindShape,
		Geometry: models.Geometry{X: 200, Y: 200, Width: 100, Height: 50},
		Style:    models.Style{StrokeColor: "#000"},
		Payload:  models.Payload{Shape: models.ShapeArrow},
	}
	text := models.Element{
		ID:       "t",
		Kind:     models.KindText,
		Geometry: models.Geometry{X: 300, Y: 50},
		Style:    models.Style{StrokeColor: "#333333", Font: &models.Font{Family: "Times New Roman", Size: 20, Weight: "bold"}},
		Payload:  models.Payload{Text: "Hello, board"},
	}
	note := models.Element{
		ID:       "n",
		Kind:     models.KindStickyNote,
		Geometry: models.Geometry{X: 400, Y: 300, Width: 120, Height: 120},
		Payload:  models.Payload{Text: "Remember"},
	}
	image := models.Element{
		ID:       "i",
		Kind:     models.KindImage,
		Geometry: models.Geometry{X: 10, Y: 400, Width: 100, Height: 100},
		Payload:  models.Payload{Source: "https://example.com/cat.png"},
	}
	return &models.Snapshot{
		Room:            "r1",
		CanvasWidth:     800,
		CanvasHeight:    600,
		BackgroundColor: "#f0f0f0",
		Elements:        []models.Element{stroke, circle, arrow, text, note, image},
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("output is not a PDF: %q", buf.Bytes()[:8])
	}
	if !bytes.Contains(buf.Bytes(), []byte("%%EOF")) {
		t.Error("PDF trailer missing")
	}
}

func TestWritePDFEmptyCanvas(t *testing.T) {
	var buf bytes.Buffer
	snap := &models.Snapshot{Room: "r1", CanvasWidth: 300, CanvasHeight: 900}
	if err := WritePDF(&buf, snap); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty output")
	}
}

func TestWritePDFRejectsZeroSize(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, &models.Snapshot{Room: "r1"}); err == nil {
		t.Error("expected error for zero-size canvas")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b int
	}{
		{"#ffffff", 255, 255, 255},
		{"#102030", 16, 32, 48},
		{"#abc", 170, 187, 204},
		{"red", 7, 7, 7},
		{"", 7, 7, 7},
	}
	for _, tt := range tests {
		r, g, b := parseColor(tt.in, 7)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("parseColor(%q) = %d,%d,%d; want %d,%d,%d", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestCoreFont(t *testing.T) {
	for in, want := range map[string]string{
		"Times New Roman": "Times",
		"JetBrains Mono":  "Courier",
		"Open Sans":       "Helvetica",
		"":                "Helvetica",
	} {
		if got := coreFont(in); got != want {
			t.Errorf("coreFont(%q) = %s, want %s", in, got, want)
		}
	}
}

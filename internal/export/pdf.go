// Package export renders a room snapshot to PDF.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"whiteboard/internal/models"

	"github.com/jung-kurt/gofpdf"
)

const defaultFontSize = 16

// WritePDF draws snap on a single page the size of its canvas, one PDF point
// per canvas pixel, and writes the document to w.
func WritePDF(w io.Writer, snap *models.Snapshot) error {
	width, height := float64(snap.CanvasWidth), float64(snap.CanvasHeight)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", snap.CanvasWidth, snap.CanvasHeight)
	}
	orientation := "P"
	if width > height {
		orientation = "L"
	}

	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	p.SetTitle("Whiteboard "+snap.Room, true)
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	r, g, b := parseColor(snap.BackgroundColor, 255)
	p.SetFillColor(r, g, b)
	p.Rect(0, 0, width, height, "F")

	for _, el := range snap.Elements {
		drawElement(p, el)
	}

	if err := p.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return p.Output(w)
}

func drawElement(p *gofpdf.Fpdf, el models.Element) {
	geo := el.Geometry
	cx, cy := geo.X+geo.Width/2, geo.Y+geo.Height/2

	p.TransformBegin()
	defer p.TransformEnd()
	if geo.Angle != 0 {
		// canvas angles are clockwise, PDF rotation is counter-clockwise
		p.TransformRotate(-geo.Angle, cx, cy)
	}
	if sx, sy := scale(geo.ScaleX), scale(geo.ScaleY); sx != 1 || sy != 1 {
		p.TransformScale(sx*100, sy*100, cx, cy)
	}

	opacity := el.Style.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	p.SetAlpha(opacity, "Normal")
	defer p.SetAlpha(1, "Normal")

	r, g, b := parseColor(el.Style.StrokeColor, 0)
	p.SetDrawColor(r, g, b)
	lineWidth := el.Style.StrokeWidth
	if lineWidth <= 0 {
		lineWidth = 1
	}
	p.SetLineWidth(lineWidth)
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	fill := el.Style.FillColor != "" && el.Style.FillColor != "transparent"
	style := "D"
	if fill {
		fr, fg, fb := parseColor(el.Style.FillColor, 255)
		p.SetFillColor(fr, fg, fb)
		style = "FD"
	}

	switch el.Kind {
	case models.KindStroke:
		drawStroke(p, el.Payload.Points, geo)
	case models.KindShape:
		drawShape(p, el.Payload.Shape, geo, style)
	case models.KindText:
		drawText(p, el, geo)
	case models.KindStickyNote:
		if !fill {
			p.SetFillColor(255, 238, 136)
		}
		p.Rect(geo.X, geo.Y, geo.Width, geo.Height, "F")
		drawText(p, el, geo)
	case models.KindImage:
		// images are references; draw their frame
		p.SetDashPattern([]float64{4, 4}, 0)
		p.Rect(geo.X, geo.Y, geo.Width, geo.Height, "D")
		p.SetDashPattern(nil, 0)
	}
}

// drawStroke draws a polyline. Points are relative to the element origin.
func drawStroke(p *gofpdf.Fpdf, points []models.Point, geo models.Geometry) {
	if len(points) == 1 {
		pt := points[0]
		p.Circle(geo.X+pt.X, geo.Y+pt.Y, 0.5, "D")
		return
	}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		p.Line(geo.X+a.X, geo.Y+a.Y, geo.X+b.X, geo.Y+b.Y)
	}
}

func drawShape(p *gofpdf.Fpdf, shape models.ShapeType, geo models.Geometry, style string) {
	x, y, w, h := geo.X, geo.Y, geo.Width, geo.Height
	switch shape {
	case models.ShapeRectangle:
		p.Rect(x, y, w, h, style)
	case models.ShapeCircle:
		p.Ellipse(x+w/2, y+h/2, w/2, h/2, 0, style)
	case models.ShapeTriangle:
		p.Polygon([]gofpdf.PointType{
			{X: x + w/2, Y: y},
			{X: x + w, Y: y + h},
			{X: x, Y: y + h},
		}, style)
	case models.ShapeLine:
		p.Line(x, y, x+w, y+h)
	case models.ShapeArrow:
		p.Line(x, y, x+w, y+h)
		drawArrowHead(p, x, y, x+w, y+h)
	}
}

func drawArrowHead(p *gofpdf.Fpdf, x1, y1, x2, y2 float64) {
	p.SetFillColor(p.GetDrawColor())
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	size := 10.0
	p.Polygon([]gofpdf.PointType{
		{X: x2, Y: y2},
		{X: x2 - size*ux + size/2*uy, Y: y2 - size*uy - size/2*ux},
		{X: x2 - size*ux - size/2*uy, Y: y2 - size*uy + size/2*ux},
	}, "F")
}

func drawText(p *gofpdf.Fpdf, el models.Element, geo models.Geometry) {
	if el.Payload.Text == "" {
		return
	}
	family, styleStr, size := "Helvetica", "", float64(defaultFontSize)
	if f := el.Style.Font; f != nil {
		family = coreFont(f.Family)
		if f.Size > 0 {
			size = f.Size
		}
		if strings.EqualFold(f.Weight, "bold") {
			styleStr += "B"
		}
		if strings.EqualFold(f.Style, "italic") {
			styleStr += "I"
		}
	}
	p.SetFont(family, styleStr, size)
	r, g, b := parseColor(el.Style.StrokeColor, 0)
	p.SetTextColor(r, g, b)

	width := geo.Width
	if width <= 0 {
		width = p.GetStringWidth(el.Payload.Text) + 2
	}
	p.SetXY(geo.X, geo.Y)
	tr := p.UnicodeTranslatorFromDescriptor("")
	p.MultiCell(width, size*1.2, tr(el.Payload.Text), "", "L", false)
}

// coreFont maps a font family onto one of the PDF core fonts.
func coreFont(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "courier"), strings.Contains(f, "mono"):
		return "Courier"
	case strings.Contains(f, "times"), strings.Contains(f, "serif") && !strings.Contains(f, "sans"):
		return "Times"
	}
	return "Helvetica"
}

func scale(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// parseColor reads #rgb or #rrggbb. Anything else yields the gray level def.
func parseColor(s string, def int) (int, int, int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return def, def, def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return def, def, def
	}
	return int((v >> 16) & 0xff), int((v >> 8) & 0xff), int(v & 0xff)
}

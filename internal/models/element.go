package models

import (
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStroke     Kind = "stroke"
	KindShape      Kind = "shape"
	KindText       Kind = "text"
	KindStickyNote Kind = "sticky_note"
	KindImage      Kind = "image"
)

func (k Kind) Valid() bool {
	switch k {
	case KindStroke, KindShape, KindText, KindStickyNote, KindImage:
		return true
	}
	return false
}

// TextBearing reports whether the kind renders a string and uses Style.Font.
func (k Kind) TextBearing() bool {
	return k == KindText || k == KindStickyNote
}

type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeTriangle  ShapeType = "triangle"
	ShapeLine      ShapeType = "line"
	ShapeArrow     ShapeType = "arrow"
)

func (s ShapeType) Valid() bool {
	switch s {
	case ShapeRectangle, ShapeCircle, ShapeTriangle, ShapeLine, ShapeArrow:
		return true
	}
	return false
}

type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Angle  float64 `json:"angle,omitempty"`
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

type Font struct {
	Family string  `json:"family"`
	Size   float64 `json:"size"`
	Weight string  `json:"weight,omitempty"`
	Style  string  `json:"style,omitempty"`
}

type Style struct {
	StrokeColor string  `json:"stroke_color,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
	FillColor   string  `json:"fill_color,omitempty"`
	Opacity     float64 `json:"opacity"`
	Font        *Font   `json:"font,omitempty"`
}

// Payload holds the kind-specific content. Only the field matching the
// element's kind is meaningful.
type Payload struct {
	Points []Point   `json:"points,omitempty"`
	Shape  ShapeType `json:"shape,omitempty"`
	Text   string    `json:"text,omitempty"`
	Source string    `json:"source,omitempty"`
}

// Element is one drawable object. Values are never mutated after creation;
// edits produce a new Element through CloneWith.
type Element struct {
	ID         string   `json:"id"`
	Kind       Kind     `json:"kind"`
	Geometry   Geometry `json:"geometry"`
	Style      Style    `json:"style"`
	Payload    Payload  `json:"payload"`
	Timestamp  int64    `json:"timestamp"`
	AuthoredBy string   `json:"authored_by,omitempty"`
}

// Patch selects the attribute groups to replace. Nil groups are kept.
type Patch struct {
	Geometry   *Geometry
	Style      *Style
	Payload    *Payload
	AuthoredBy *string
}

// NewElement builds an element with a fresh id and timestamp.
func NewElement(kind Kind, geometry Geometry, style Style, payload Payload) (Element, error) {
	if !kind.Valid() {
		return Element{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if geometry.ScaleX == 0 {
		geometry.ScaleX = 1
	}
	if geometry.ScaleY == 0 {
		geometry.ScaleY = 1
	}
	if style.Opacity == 0 {
		style.Opacity = 1
	}
	el := Element{
		ID:        uuid.NewString(),
		Kind:      kind,
		Geometry:  geometry,
		Style:     copyStyle(style),
		Payload:   copyPayload(payload),
		Timestamp: DefaultClock.Now(),
	}
	if err := el.Validate(); err != nil {
		return Element{}, err
	}
	return el, nil
}

// CloneWith returns a copy with the patched groups replaced wholesale and a
// timestamp strictly greater than the receiver's.
func (e Element) CloneWith(p Patch) Element {
	out := e.Clone()
	if p.Geometry != nil {
		out.Geometry = *p.Geometry
	}
	if p.Style != nil {
		out.Style = copyStyle(*p.Style)
	}
	if p.Payload != nil {
		out.Payload = copyPayload(*p.Payload)
	}
	if p.AuthoredBy != nil {
		out.AuthoredBy = *p.AuthoredBy
	}
	out.Timestamp = DefaultClock.After(e.Timestamp)
	return out
}

// Clone deep-copies the element so the copy shares no slices or pointers.
func (e Element) Clone() Element {
	e.Style = copyStyle(e.Style)
	e.Payload = copyPayload(e.Payload)
	return e
}

func (e Element) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: element id is required", ErrInvalidEvent)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if e.Kind == KindShape && !e.Payload.Shape.Valid() {
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidEvent, e.Payload.Shape)
	}
	if e.Style.Opacity < 0 || e.Style.Opacity > 1 {
		return fmt.Errorf("%w: opacity %v out of range", ErrInvalidEvent, e.Style.Opacity)
	}
	return nil
}

func copyStyle(s Style) Style {
	if s.Font != nil {
		f := *s.Font
		s.Font = &f
	}
	return s
}

func copyPayload(p Payload) Payload {
	if p.Points != nil {
		p.Points = append([]Point(nil), p.Points...)
	}
	return p
}

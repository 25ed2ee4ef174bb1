package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"whiteboard/internal/models"
	"whiteboard/internal/reconciler"
)

var errUsage = errors.New("usage")

const help = `commands:
  rect|circle|triangle X Y W H     draw a shape
  line|arrow X1 Y1 X2 Y2           draw a line or arrow
  stroke X1 Y1 X2 Y2 [X Y ...]     draw a freehand stroke
  text|note X Y TEXT               place text or a sticky note
  move ID X Y                      move an element
  color ID #RRGGBB                 recolor an element's stroke
  delete ID                        remove an element
  clear                            empty the room
  undo                             remove your latest element (local only)
  list                             print the local replica
  offline | reconnect | quit`

// run applies one command line to the replica and reports to out.
func run(r *reconciler.Reconciler, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Fprintln(out, help)
		return nil
	case "rect", "circle", "triangle":
		nums, err := floats(args, 4, 4)
		if err != nil {
			return err
		}
		geo := models.Geometry{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}
		return create(r, out, models.KindShape, geo, models.Payload{Shape: shapeFor(cmd)})
	case "line", "arrow":
		nums, err := floats(args, 4, 4)
		if err != nil {
			return err
		}
		geo := models.Geometry{X: nums[0], Y: nums[1], Width: nums[2] - nums[0], Height: nums[3] - nums[1]}
		return create(r, out, models.KindShape, geo, models.Payload{Shape: shapeFor(cmd)})
	case "stroke":
		nums, err := floats(args, 4, -1)
		if err != nil || len(nums)%2 != 0 {
			return fmt.Errorf("%w: stroke needs coordinate pairs", errUsage)
		}
		// points are relative to the first one
		ox, oy := nums[0], nums[1]
		points := make([]models.Point, 0, len(nums)/2)
		for i := 0; i < len(nums); i += 2 {
			points = append(points, models.Point{X: nums[i] - ox, Y: nums[i+1] - oy})
		}
		return create(r, out, models.KindStroke, models.Geometry{X: ox, Y: oy}, models.Payload{Points: points})
	case "text", "note":
		if len(args) < 3 {
			return fmt.Errorf("%w: %s X Y TEXT", errUsage, cmd)
		}
		nums, err := floats(args[:2], 2, 2)
		if err != nil {
			return err
		}
		kind, geo := models.KindText, models.Geometry{X: nums[0], Y: nums[1]}
		if cmd == "note" {
			kind, geo.Width, geo.Height = models.KindStickyNote, 200, 200
		}
		return create(r, out, kind, geo, models.Payload{Text: strings.Join(args[2:], " ")})
	case "move":
		if len(args) != 3 {
			return fmt.Errorf("%w: move ID X Y", errUsage)
		}
		nums, err := floats(args[1:], 2, 2)
		if err != nil {
			return err
		}
		el, ok := r.Element(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrUnknownElement, args[0])
		}
		geo := el.Geometry
		geo.X, geo.Y = nums[0], nums[1]
		_, err = r.Update(el.ID, models.Patch{Geometry: &geo})
		return err
	case "color":
		if len(args) != 2 {
			return fmt.Errorf("%w: color ID #RRGGBB", errUsage)
		}
		el, ok := r.Element(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrUnknownElement, args[0])
		}
		style := el.Style
		style.StrokeColor = args[1]
		_, err := r.Update(el.ID, models.Patch{Style: &style})
		return err
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("%w: delete ID", errUsage)
		}
		r.Delete(args[0])
		return nil
	case "clear":
		r.Clear()
		return nil
	case "undo":
		if id, ok := r.Undo(); ok {
			fmt.Fprintf(out, "undid %s\n", id)
		} else {
			fmt.Fprintln(out, "nothing to undo")
		}
		return nil
	case "list":
		list(r, out)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q, try help", errUsage, cmd)
}

func create(r *reconciler.Reconciler, out io.Writer, kind models.Kind, geo models.Geometry, payload models.Payload) error {
	style := models.Style{StrokeColor: "#000000", StrokeWidth: 2, Opacity: 1}
	el, err := r.Create(kind, geo, style, payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, el.ID)
	return nil
}

func list(r *reconciler.Reconciler, out io.Writer) {
	elements := r.Elements()
	fmt.Fprintf(out, "room %s: %d elements, %d members\n", r.Room(), len(elements), r.Members())
	for _, el := range elements {
		label := string(el.Kind)
		switch {
		case el.Kind == models.KindShape:
			label = string(el.Payload.Shape)
		case el.Payload.Text != "":
			label += " " + strconv.Quote(el.Payload.Text)
		}
		fmt.Fprintf(out, "  %s %s at (%g,%g) %s\n", el.ID, label, el.Geometry.X, el.Geometry.Y, el.Style.StrokeColor)
	}
}

func shapeFor(cmd string) models.ShapeType {
	if cmd == "rect" {
		return models.ShapeRectangle
	}
	return models.ShapeType(cmd)
}

// floats parses args as numbers. hi < 0 means no upper bound.
func floats(args []string, lo, hi int) ([]float64, error) {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return nil, fmt.Errorf("%w: expected %d numbers, got %d", errUsage, lo, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

package canvas

import (
	"fmt"

	"whiteboard/internal/models"
)

// Elements is an insertion-ordered map of canvas elements keyed by id.
// Replacing an element keeps its position; deleting and re-creating an id
// moves it to the end. Elements is not safe for concurrent use.
type Elements struct {
	order []string
	byID  map[string]models.Element
}

func NewElements() *Elements {
	return &Elements{byID: make(map[string]models.Element)}
}

// Create inserts el, failing with ErrConflict if its id is already present.
func (s *Elements) Create(el models.Element) error {
	if _, exists := s.byID[el.ID]; exists {
		return fmt.Errorf("%w: %s", models.ErrConflict, el.ID)
	}
	s.byID[el.ID] = el.Clone()
	s.order = append(s.order, el.ID)
	return nil
}

// Update replaces the element stored under id wholesale. The last update
// applied wins regardless of timestamps.
func (s *Elements) Update(id string, el models.Element) error {
	if _, exists := s.byID[id]; !exists {
		return fmt.Errorf("%w: %s", models.ErrUnknownElement, id)
	}
	el = el.Clone()
	el.ID = id
	s.byID[id] = el
	return nil
}

// Put inserts or replaces el.
func (s *Elements) Put(el models.Element) {
	if _, exists := s.byID[el.ID]; !exists {
		s.order = append(s.order, el.ID)
	}
	s.byID[el.ID] = el.Clone()
}

// Delete removes id and reports whether it was present.
func (s *Elements) Delete(id string) bool {
	if _, exists := s.byID[id]; !exists {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Elements) Clear() {
	s.order = nil
	s.byID = make(map[string]models.Element)
}

// Reset replaces the whole set with list, in list order.
func (s *Elements) Reset(list []models.Element) {
	s.Clear()
	for _, el := range list {
		s.Put(el)
	}
}

func (s *Elements) Get(id string) (models.Element, bool) {
	el, ok := s.byID[id]
	if !ok {
		return models.Element{}, false
	}
	return el.Clone(), true
}

func (s *Elements) Len() int {
	return len(s.order)
}

// List returns deep copies in insertion order.
func (s *Elements) List() []models.Element {
	out := make([]models.Element, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Apply performs a draw operation. It is the single definition of
// create/update/delete/clear semantics for the store and for replicas.
func (s *Elements) Apply(ev models.Event) error {
	switch ev.Type {
	case models.EventCreate:
		if ev.Element == nil {
			return fmt.Errorf("%w: create without element", models.ErrInvalidEvent)
		}
		return s.Create(*ev.Element)
	case models.EventUpdate:
		if ev.Element == nil {
			return fmt.Errorf("%w: update without element", models.ErrInvalidEvent)
		}
		return s.Update(ev.Element.ID, *ev.Element)
	case models.EventDelete:
		s.Delete(ev.ElementID)
		return nil
	case models.EventClear:
		s.Clear()
		return nil
	}
	return fmt.Errorf("%w: %q is not a draw operation", models.ErrInvalidEvent, ev.Type)
}

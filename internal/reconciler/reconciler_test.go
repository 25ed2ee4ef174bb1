package reconciler

import (
	"errors"
	"fmt"
	"testing"

	"whiteboard/internal/canvas"
	"whiteboard/internal/models"
)

type outbox struct {
	events []models.Event
	fail   bool
}

func (o *outbox) send(ev models.Event) error {
	if o.fail {
		return errors.New("offline")
	}
	o.events = append(o.events, ev)
	return nil
}

func rect(r *Reconciler, t *testing.T) models.Element {
	t.Helper()
	el, err := r.Create(models.KindShape,
		models.Geometry{X: 1, Y: 2, Width: 30, Height: 40},
		models.Style{StrokeColor: "#112233", StrokeWidth: 2},
		models.Payload{Shape: models.ShapeRectangle})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return el
}

func ids(list []models.Element) string {
	out := make([]string, len(list))
	for i, el := range list {
		out[i] = el.ID
	}
	return fmt.Sprint(out)
}

func TestCreateAppliesLocallyAndEmits(t *testing.T) {
	out := &outbox{}
	r := New("room", "alice", 10, out.send)

	el := rect(r, t)
	if el.AuthoredBy != "alice" {
		t.Errorf("AuthoredBy = %q", el.AuthoredBy)
	}
	if _, ok := r.Element(el.ID); !ok {
		t.Fatal("created element missing from replica")
	}
	if len(out.events) != 1 || out.events[0].Type != models.EventCreate || out.events[0].Room != "room" {
		t.Fatalf("unexpected outbound events: %+v", out.events)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	out := &outbox{}
	r := New("room", "alice", 10, out.send)
	if _, err := r.Create("blob", models.Geometry{}, models.Style{}, models.Payload{}); !errors.Is(err, models.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if len(out.events) != 0 {
		t.Error("rejected element was emitted")
	}
}

func TestLocalEditSurvivesSendFailure(t *testing.T) {
	out := &outbox{fail: true}
	r := New("room", "alice", 10, out.send)
	el := rect(r, t)

	if _, ok := r.Element(el.ID); !ok {
		t.Error("local edit lost after send failure")
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", r.Dropped())
	}
}

func TestUpdateReplacesGroupsAndAdvancesTimestamp(t *testing.T) {
	out := &outbox{}
	r := New("room", "alice", 10, out.send)
	el := rect(r, t)

	style := models.Style{StrokeColor: "#ff0000", Opacity: 0.5}
	updated, err := r.Update(el.ID, models.Patch{Style: &style})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Style.StrokeWidth != 0 || updated.Style.StrokeColor != "#ff0000" {
		t.Errorf("style not replaced wholesale: %+v", updated.Style)
	}
	if updated.Geometry != el.Geometry {
		t.Errorf("unpatched geometry changed: %+v", updated.Geometry)
	}
	if updated.Timestamp <= el.Timestamp {
		t.Errorf("timestamp %d not after %d", updated.Timestamp, el.Timestamp)
	}
	if last := out.events[len(out.events)-1]; last.Type != models.EventUpdate || last.Element.ID != el.ID {
		t.Errorf("unexpected update event: %+v", last)
	}

	if _, err := r.Update("missing", models.Patch{Style: &style}); !errors.Is(err, models.ErrUnknownElement) {
		t.Errorf("expected ErrUnknownElement, got %v", err)
	}
}

func TestRemoteEventsUseStoreSemantics(t *testing.T) {
	r := New("room", "bob", 10, nil)
	a := models.Element{ID: "a", Kind: models.KindText, Style: models.Style{Opacity: 1}, Payload: models.Payload{Text: "hi"}}
	b := models.Element{ID: "b", Kind: models.KindText, Style: models.Style{Opacity: 1}, Payload: models.Payload{Text: "yo"}}

	steps := []models.Event{
		models.CreateEvent("room", a),
		models.CreateEvent("room", b),
		models.UpdateEvent("room", models.Element{ID: "a", Kind: models.KindText, Payload: models.Payload{Text: "edited"}}),
		models.DeleteEvent("room", "b"),
		models.DeleteEvent("room", "b"),
		models.UpdateEvent("room", models.Element{ID: "b", Kind: models.KindText}),
	}
	for _, ev := range steps {
		if err := r.ApplyRemote(ev); err != nil {
			t.Fatalf("ApplyRemote(%s) failed: %v", ev.Type, err)
		}
	}

	got := r.Elements()
	if len(got) != 1 || got[0].ID != "a" || got[0].Payload.Text != "edited" {
		t.Errorf("unexpected replica: %+v", got)
	}

	if err := r.ApplyRemote(models.ClearEvent("room")); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(r.Elements()) != 0 {
		t.Error("clear left elements behind")
	}
}

func TestRemoteCreateOfKnownIDReplaces(t *testing.T) {
	r := New("room", "bob", 10, nil)
	snap := models.Snapshot{Room: "room", Elements: []models.Element{{ID: "a", Kind: models.KindText, Payload: models.Payload{Text: "old"}}}}
	if err := r.ApplyRemote(models.SnapshotEvent(snap)); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if err := r.ApplyRemote(models.CreateEvent("room", models.Element{ID: "a", Kind: models.KindText, Payload: models.Payload{Text: "new"}})); err != nil {
		t.Fatalf("overlapping create failed: %v", err)
	}
	got := r.Elements()
	if len(got) != 1 || got[0].Payload.Text != "new" {
		t.Errorf("unexpected replica: %+v", got)
	}
}

func TestReplicasConvergeWithStore(t *testing.T) {
	store := canvas.NewElements()
	var log []models.Event
	emit := func(ev models.Event) error {
		_ = store.Apply(ev)
		log = append(log, ev)
		return nil
	}
	alice := New("room", "alice", 10, emit)

	first := rect(alice, t)
	second := rect(alice, t)
	geo := models.Geometry{X: 99, ScaleX: 1, ScaleY: 1}
	if _, err := alice.Update(first.ID, models.Patch{Geometry: &geo}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	alice.Delete(second.ID)
	third := rect(alice, t)

	bob := New("room", "bob", 10, nil)
	for _, ev := range log {
		if err := bob.ApplyRemote(ev); err != nil {
			t.Fatalf("ApplyRemote failed: %v", err)
		}
	}

	want := ids(store.List())
	if got := ids(alice.Elements()); got != want {
		t.Errorf("alice %s, store %s", got, want)
	}
	if got := ids(bob.Elements()); got != want {
		t.Errorf("bob %s, store %s", got, want)
	}
	if want != fmt.Sprint([]string{first.ID, third.ID}) {
		t.Errorf("unexpected final order %s", want)
	}
	el, _ := bob.Element(first.ID)
	if el.Geometry.X != 99 {
		t.Errorf("bob missed update: %+v", el.Geometry)
	}
}

func TestResyncDropsOfflineEdits(t *testing.T) {
	out := &outbox{}
	r := New("room", "alice", 10, out.send)
	online := rect(r, t)

	out.fail = true
	offline := rect(r, t)

	r.Resync(models.Snapshot{Room: "room", Elements: []models.Element{online}})
	if _, ok := r.Element(offline.ID); ok {
		t.Error("offline edit survived resync")
	}
	if _, ok := r.Undo(); ok {
		t.Error("history survived resync")
	}
	if len(r.Elements()) != 1 {
		t.Errorf("unexpected replica: %+v", r.Elements())
	}
}

func TestUndoRemovesLatestLocalElementOnly(t *testing.T) {
	out := &outbox{}
	r := New("room", "alice", 10, out.send)
	first := rect(r, t)
	second := rect(r, t)
	_ = r.ApplyRemote(models.CreateEvent("room", models.Element{ID: "remote", Kind: models.KindText}))
	sent := len(out.events)

	id, ok := r.Undo()
	if !ok || id != second.ID {
		t.Fatalf("Undo = %q, %v; want %s", id, ok, second.ID)
	}
	if len(out.events) != sent {
		t.Error("undo was broadcast")
	}

	// remote delete of the next candidate makes undo skip it
	_ = r.ApplyRemote(models.DeleteEvent("room", first.ID))
	if _, ok := r.Undo(); ok {
		t.Error("undo removed an element that was not local")
	}
	if _, ok := r.Element("remote"); !ok {
		t.Error("remote element removed by undo")
	}
}

func TestUndoHistoryIsBounded(t *testing.T) {
	r := New("room", "alice", 3, nil)
	created := make([]models.Element, 5)
	for i := range created {
		created[i] = rect(r, t)
	}
	undone := 0
	for {
		if _, ok := r.Undo(); !ok {
			break
		}
		undone++
	}
	if undone != 3 {
		t.Errorf("undid %d elements, want 3", undone)
	}
	for _, el := range created[:2] {
		if _, ok := r.Element(el.ID); !ok {
			t.Errorf("element %s beyond history depth was removed", el.ID)
		}
	}
}

func TestMembershipTracking(t *testing.T) {
	r := New("room", "alice", 10, nil)
	_ = r.ApplyRemote(models.MembershipEvent("room", 4))
	if r.Members() != 4 {
		t.Errorf("Members = %d", r.Members())
	}
	_ = r.ApplyRemote(models.Event{Type: models.EventRoomClosed, Room: "room"})
	if r.Members() != 0 {
		t.Errorf("Members after close = %d", r.Members())
	}
}

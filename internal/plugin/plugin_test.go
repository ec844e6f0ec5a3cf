package plugin

import (
	"errors"
	"testing"

	"github.com/knirvcorp/embeddb/internal/value"
)

type recordingPlugin struct {
	Base
	events *[]string
}

func (p recordingPlugin) OnBeforeInsert(collection string, doc value.Value) (value.Value, error) {
	*p.events = append(*p.events, "before-insert:"+p.PluginName)
	return doc, nil
}

func (p recordingPlugin) OnAfterInsert(collection string, doc value.Value) error {
	*p.events = append(*p.events, "after-insert:"+p.PluginName)
	return nil
}

type failingPlugin struct {
	Base
}

func (failingPlugin) OnBeforeInsert(collection string, doc value.Value) (value.Value, error) {
	return doc, errors.New("rejected")
}

func TestRegistryDispatchesInOrder(t *testing.T) {
	var events []string
	r := NewRegistry()
	r.Register(recordingPlugin{Base: Base{PluginName: "first"}, events: &events})
	r.Register(recordingPlugin{Base: Base{PluginName: "second"}, events: &events})

	doc := value.NewObject()
	if _, err := r.DispatchBeforeInsert("users", doc); err != nil {
		t.Fatalf("dispatch before insert: %v", err)
	}
	if err := r.DispatchAfterInsert("users", doc); err != nil {
		t.Fatalf("dispatch after insert: %v", err)
	}

	want := []string{"before-insert:first", "before-insert:second", "after-insert:first", "after-insert:second"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestRegistryPropagatesPluginError(t *testing.T) {
	r := NewRegistry()
	r.Register(failingPlugin{})
	_, err := r.DispatchBeforeInsert("users", value.NewObject())
	if err == nil {
		t.Fatal("expected plugin error to propagate")
	}
}

func TestBaseHooksAreNoOps(t *testing.T) {
	var b Base
	if err := b.OnInit(nil); err != nil {
		t.Fatal(err)
	}
	if err := b.OnCollectionCreate("x"); err != nil {
		t.Fatal(err)
	}
	if err := b.OnDestroy(); err != nil {
		t.Fatal(err)
	}
}

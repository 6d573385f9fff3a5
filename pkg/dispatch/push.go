package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/scenewire/scenewire/pkg/scene"
)

// Push event names.
const (
	PushMeshListChanged  = "meshListChanged"
	PushMeshUpdated      = "meshUpdated"
	PushSelectionChanged = "selectionChanged"
)

// EncodePush builds a marshaled push envelope with a null id.
func EncodePush(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding push data: %w", err)
	}
	return json.Marshal(&Push{Type: TypePush, Event: event, Data: raw})
}

// PushForEvent translates a scene change into the push envelope
// broadcast to every client.
func (d *Dispatcher) PushForEvent(ev scene.Event) ([]byte, error) {
	switch ev.Kind {
	case scene.EventMeshList:
		return EncodePush(PushMeshListChanged, map[string]any{"count": d.scene.MeshCount()})
	case scene.EventMeshUpdated:
		return EncodePush(PushMeshUpdated, map[string]any{"index": ev.Index})
	case scene.EventSelection:
		return EncodePush(PushSelectionChanged, map[string]any{"index": ev.Index})
	default:
		return nil, fmt.Errorf("dispatch: unknown scene event kind %v", ev.Kind)
	}
}

// ParsePush decodes a push envelope, the client-side counterpart of
// EncodePush.
func ParsePush(raw []byte) (*Push, error) {
	var p Push
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Type != TypePush {
		return nil, fmt.Errorf("%w: type %q is not a push", ErrMalformed, p.Type)
	}
	return &p, nil
}

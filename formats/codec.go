package formats

import (
	"fmt"
)

// Codec turns an entity list into bytes and back
type Codec[E any] interface {
	Encode(entities []E) ([]byte, error)
	Decode(data []byte) ([]E, error)
}

// For returns a codec that writes entities as they are
func For[E any](f *Format) Codec[E] {
	return direct[E]{format: f}
}

type direct[E any] struct {
	format *Format
}

func (d direct[E]) Encode(entities []E) ([]byte, error) {
	if entities == nil {
		entities = []E{}
	}
	data, err := d.format.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", d.format.Name, err)
	}
	return data, nil
}

func (d direct[E]) Decode(data []byte) ([]E, error) {
	var entities []E
	if err := d.format.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", d.format.Name, err)
	}
	return entities, nil
}

// Mapped returns a codec that writes each entity as its wire form W.
// toWire and fromWire play the part of a replacer/reviver pair: they handle
// fields the format cannot represent directly, such as times in a custom
// layout or values that must not be stored.
func Mapped[E, W any](f *Format, toWire func(E) (W, error), fromWire func(W) (E, error)) Codec[E] {
	return mapped[E, W]{direct: direct[W]{format: f}, toWire: toWire, fromWire: fromWire}
}

type mapped[E, W any] struct {
	direct   direct[W]
	toWire   func(E) (W, error)
	fromWire func(W) (E, error)
}

func (m mapped[E, W]) Encode(entities []E) ([]byte, error) {
	wire := make([]W, 0, len(entities))
	for i, e := range entities {
		w, err := m.toWire(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entity %d: %w", i, err)
		}
		wire = append(wire, w)
	}
	return m.direct.Encode(wire)
}

func (m mapped[E, W]) Decode(data []byte) ([]E, error) {
	wire, err := m.direct.Decode(data)
	if err != nil {
		return nil, err
	}
	entities := make([]E, 0, len(wire))
	for i, w := range wire {
		e, err := m.fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entity %d: %w", i, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

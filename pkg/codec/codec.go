// Package codec provides the serialization collaborator for fork channels.
//
// Values cross the process boundary wrapped in an envelope struct so that
// interface-typed values round-trip: the concrete type travels with the
// value. Encoding fails for values the codec cannot inspect (unregistered
// named types inside interfaces, channels, functions, values holding live
// OS resources); callers treat that as an expected, recoverable condition.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
)

// Codec encodes values to bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, v any) error
}

// payload is the wire envelope. Interface fields carry the concrete type
// name, which is what lets Decode reconstruct the original dynamic type.
type payload struct {
	V any
}

// Register records a concrete type so it can travel inside the envelope.
// Basic types (integers, strings, bools, floats, []byte) need no
// registration.
func Register(v any) {
	gob.Register(v)
}

// Gob is the default codec, encoding values with encoding/gob.
type Gob struct{}

// Encode serializes v.
func (Gob) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload{V: v}); err != nil {
		return nil, fmt.Errorf("codec: failed to encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes b into v, which must be a non-nil pointer whose
// element type the decoded value is assignable to. Passing a *any accepts
// any decoded value.
func (Gob) Decode(b []byte, v any) error {
	var p payload
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&p); err != nil {
		return fmt.Errorf("codec: failed to decode: %w", err)
	}
	return assign(p.V, v)
}

func assign(src, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("codec: decode target must be a non-nil pointer, got %T", dst)
	}
	ev := rv.Elem()
	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if !sv.Type().AssignableTo(ev.Type()) {
		return fmt.Errorf("codec: cannot assign decoded %T to %s", src, ev.Type())
	}
	ev.Set(sv)
	return nil
}

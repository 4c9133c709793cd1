package schema

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fixtura/fixtura"
)

// Snapshot encodes a definition in a compact binary form suitable for the
// fixtura.Cache. Unlike Marshal, the snapshot form is not meant for humans
// or diffs; it round-trips the definition exactly and quickly.
func Snapshot(d *Definition) ([]byte, error) {
	d.Sort()
	data, err := msgpack.Marshal(d)
	if err != nil {
		return nil, fixtura.NewSchemaErrorWrap(err, "snapshot definition")
	}
	return data, nil
}

// FromSnapshot decodes a definition previously encoded with Snapshot.
func FromSnapshot(data []byte) (*Definition, error) {
	d := &Definition{}
	if err := msgpack.Unmarshal(data, d); err != nil {
		return nil, fixtura.NewSchemaErrorWrap(err, "decode definition snapshot")
	}
	return d, nil
}

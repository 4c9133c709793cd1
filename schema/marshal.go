package schema

import (
	"gopkg.in/yaml.v3"

	"github.com/fixtura/fixtura"
)

// Marshal encodes a definition as YAML. The persisted layout is a nested
// mapping:
//
//	tables:
//	  <table>:
//	    fields: {...}
//	    indexes: {...}
//	relations:
//	  <relation>: {...}
//
// Tables and relations are sorted by name so that repeated exports of the
// same database produce identical output. Field order inside a table
// follows declaration order.
func Marshal(d *Definition) ([]byte, error) {
	d.Sort()
	root := mappingNode()
	tables := mappingNode()
	for _, t := range d.Tables {
		tn, err := tableNode(t)
		if err != nil {
			return nil, fixtura.NewSchemaErrorWrap(err, "encode table %q", t.Name)
		}
		appendEntry(tables, t.Name, tn)
	}
	appendEntry(root, "tables", tables)
	if len(d.Relations) > 0 {
		rels := mappingNode()
		for _, r := range d.Relations {
			rn := new(yaml.Node)
			if err := rn.Encode(r); err != nil {
				return nil, fixtura.NewSchemaErrorWrap(err, "encode relation %q", r.Name)
			}
			appendEntry(rels, r.Name, rn)
		}
		appendEntry(root, "relations", rels)
	}
	return yaml.Marshal(root)
}

// Unmarshal decodes a definition previously encoded with Marshal.
func Unmarshal(data []byte) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fixtura.NewSchemaErrorWrap(err, "decode definition")
	}
	def := &Definition{}
	if len(doc.Content) == 0 {
		return def, nil
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "tables":
			for j := 0; j+1 < len(val.Content); j += 2 {
				t, err := decodeTable(val.Content[j].Value, val.Content[j+1])
				if err != nil {
					return nil, err
				}
				def.Tables = append(def.Tables, t)
			}
		case "relations":
			for j := 0; j+1 < len(val.Content); j += 2 {
				r := &Relation{}
				if err := val.Content[j+1].Decode(r); err != nil {
					return nil, fixtura.NewSchemaErrorWrap(err, "decode relation %q", val.Content[j].Value)
				}
				r.Name = val.Content[j].Value
				def.Relations = append(def.Relations, r)
			}
		}
	}
	def.Sort()
	return def, nil
}

func tableNode(t *Table) (*yaml.Node, error) {
	n := mappingNode()
	fields := mappingNode()
	for _, f := range t.Fields {
		fn := new(yaml.Node)
		if err := fn.Encode(f); err != nil {
			return nil, err
		}
		appendEntry(fields, f.Name, fn)
	}
	appendEntry(n, "fields", fields)
	if len(t.Indexes) > 0 {
		indexes := mappingNode()
		for _, idx := range t.Indexes {
			in := new(yaml.Node)
			if err := in.Encode(idx); err != nil {
				return nil, err
			}
			appendEntry(indexes, idx.Name, in)
		}
		appendEntry(n, "indexes", indexes)
	}
	if t.ReadOnly {
		ro := new(yaml.Node)
		if err := ro.Encode(true); err != nil {
			return nil, err
		}
		appendEntry(n, "readonly", ro)
	}
	return n, nil
}

func decodeTable(name string, node *yaml.Node) (*Table, error) {
	t := &Table{Name: name}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "fields":
			for j := 0; j+1 < len(val.Content); j += 2 {
				f := &Field{}
				if err := val.Content[j+1].Decode(f); err != nil {
					return nil, fixtura.NewSchemaErrorWrap(err, "decode field %s.%s", name, val.Content[j].Value)
				}
				f.Name = val.Content[j].Value
				t.Fields = append(t.Fields, f)
			}
		case "indexes":
			for j := 0; j+1 < len(val.Content); j += 2 {
				idx := &Index{}
				if err := val.Content[j+1].Decode(idx); err != nil {
					return nil, fixtura.NewSchemaErrorWrap(err, "decode index %s.%s", name, val.Content[j].Value)
				}
				idx.Name = val.Content[j].Value
				t.Indexes = append(t.Indexes, idx)
			}
		case "readonly":
			if err := val.Decode(&t.ReadOnly); err != nil {
				return nil, fixtura.NewSchemaErrorWrap(err, "decode table %q", name)
			}
		}
	}
	return t, nil
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func appendEntry(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

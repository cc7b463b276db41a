package storage

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"csb/internal/names"
	"csb/internal/unit"
)

// Field numbers of an encoded unit record. Workflow and done state are kept
// in their own columns.
const (
	fieldDep               protowire.Number = 1
	fieldHistory           protowire.Number = 2
	fieldImportPackage     protowire.Number = 3
	fieldImportDefinition  protowire.Number = 4
	fieldDefinition        protowire.Number = 5
	fieldResourceBundle    protowire.Number = 6
	fieldBundleHistory     protowire.Number = 7
	fieldExtraClass        protowire.Number = 8
	fieldLoaderClass       protowire.Number = 9
	fieldBinding           protowire.Number = 10
	fieldTypeInfo          protowire.Number = 11
	fieldGenerated         protowire.Number = 12
	fieldNameClass         protowire.Number = 1
	fieldNameLocal         protowire.Number = 2
	fieldNameNamespace     protowire.Number = 3
	fieldNameQualified     protowire.Number = 4
	fieldHistoryClass      protowire.Number = 1
	fieldHistoryName       protowire.Number = 2
	fieldHistoryQName      protowire.Number = 3
	fieldPairKey           protowire.Number = 1
	fieldPairValue         protowire.Number = 2
	fieldTypeInfoSlot      protowire.Number = 1
	fieldTypeInfoSignature protowire.Number = 2
	fieldTypeInfoDef       protowire.Number = 3
	fieldTypeInfoData      protowire.Number = 4
)

// GeneratedRef links a unit to a generated source by name. Generated sources
// are restored as sources of their own and reattached by the caller.
type GeneratedRef struct {
	QName  names.QName
	Source string
}

// EncodeUnit serializes the compiled state of u. Syntax trees, validity and
// bytecode are not part of the record.
func EncodeUnit(u *unit.Unit) []byte {
	var b []byte
	for _, c := range unit.DepClasses {
		for _, n := range u.Deps(c).All() {
			b = protowire.AppendTag(b, fieldDep, protowire.BytesType)
			b = protowire.AppendBytes(b, encodeName(c, n))
		}
		for _, e := range u.History(c).Entries() {
			var h []byte
			h = protowire.AppendTag(h, fieldHistoryClass, protowire.VarintType)
			h = protowire.AppendVarint(h, uint64(c))
			h = protowire.AppendTag(h, fieldHistoryName, protowire.BytesType)
			h = protowire.AppendBytes(h, encodeName(c, e.Name))
			h = protowire.AppendTag(h, fieldHistoryQName, protowire.BytesType)
			h = protowire.AppendString(h, qkey(e.QName))
			b = protowire.AppendTag(b, fieldHistory, protowire.BytesType)
			b = protowire.AppendBytes(b, h)
		}
	}
	b = appendStrings(b, fieldImportPackage, u.ImportPackages)
	b = appendQNames(b, fieldImportDefinition, u.ImportDefinitions)
	b = appendQNames(b, fieldDefinition, u.TopLevelDefinitions)
	b = appendStrings(b, fieldResourceBundle, u.ResourceBundles)

	bundles := make([]string, 0, len(u.ResourceBundleHistory))
	for name := range u.ResourceBundleHistory {
		bundles = append(bundles, name)
	}
	sort.Strings(bundles)
	for _, name := range bundles {
		var h []byte
		h = protowire.AppendTag(h, fieldPairKey, protowire.BytesType)
		h = protowire.AppendString(h, name)
		h = appendQNames(h, fieldPairValue, u.ResourceBundleHistory[name])
		b = protowire.AppendTag(b, fieldBundleHistory, protowire.BytesType)
		b = protowire.AppendBytes(b, h)
	}

	b = appendStrings(b, fieldExtraClass, u.ExtraClasses)
	if u.LoaderClass != "" {
		b = protowire.AppendTag(b, fieldLoaderClass, protowire.BytesType)
		b = protowire.AppendString(b, u.LoaderClass)
	}

	bound := make([]names.QName, 0, len(u.Bindings))
	for q := range u.Bindings {
		bound = append(bound, q)
	}
	names.SortQNames(bound)
	for _, q := range bound {
		b = protowire.AppendTag(b, fieldBinding, protowire.BytesType)
		b = protowire.AppendBytes(b, encodePair(qkey(q), u.Bindings[q]))
	}

	if ti := u.TypeInfo(); ti != nil {
		var t []byte
		t = protowire.AppendTag(t, fieldTypeInfoSlot, protowire.BytesType)
		t = protowire.AppendString(t, ti.Slot)
		t = protowire.AppendTag(t, fieldTypeInfoSignature, protowire.BytesType)
		t = protowire.AppendString(t, ti.Signature)
		t = appendQNames(t, fieldTypeInfoDef, ti.Definitions)
		t = protowire.AppendTag(t, fieldTypeInfoData, protowire.BytesType)
		t = protowire.AppendBytes(t, ti.Data)
		b = protowire.AppendTag(b, fieldTypeInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, t)
	}

	for _, g := range u.GeneratedSources() {
		b = protowire.AppendTag(b, fieldGenerated, protowire.BytesType)
		b = protowire.AppendBytes(b, encodePair(qkey(g.QName), g.Source.Name()))
	}
	return b
}

// DecodeUnit restores a record written by EncodeUnit into u, which must be
// freshly created.
func DecodeUnit(u *unit.Unit, b []byte) ([]GeneratedRef, error) {
	var generated []GeneratedRef
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldDep:
			c, n, err := decodeName(v)
			if err != nil {
				return err
			}
			u.Deps(c).Add(n)
		case fieldHistory:
			return decodeHistory(u, v)
		case fieldImportPackage:
			u.ImportPackages = append(u.ImportPackages, string(v))
		case fieldImportDefinition:
			u.ImportDefinitions = append(u.ImportDefinitions, names.ParseQName(string(v)))
		case fieldDefinition:
			u.TopLevelDefinitions = append(u.TopLevelDefinitions, names.ParseQName(string(v)))
		case fieldResourceBundle:
			u.ResourceBundles = append(u.ResourceBundles, string(v))
		case fieldBundleHistory:
			var name string
			var qs []names.QName
			err := eachField(v, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
				switch num {
				case fieldPairKey:
					name = string(v)
				case fieldPairValue:
					qs = append(qs, names.ParseQName(string(v)))
				}
				return nil
			})
			if err != nil {
				return err
			}
			u.ResourceBundleHistory[name] = qs
		case fieldExtraClass:
			u.ExtraClasses = append(u.ExtraClasses, string(v))
		case fieldLoaderClass:
			u.LoaderClass = string(v)
		case fieldBinding:
			k, val, err := decodePair(v)
			if err != nil {
				return err
			}
			u.Bindings[names.ParseQName(k)] = val
		case fieldTypeInfo:
			ti, err := decodeTypeInfo(v)
			if err != nil {
				return err
			}
			u.SetTypeInfo(ti)
		case fieldGenerated:
			k, val, err := decodePair(v)
			if err != nil {
				return err
			}
			generated = append(generated, GeneratedRef{QName: names.ParseQName(k), Source: val})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return generated, nil
}

// eachField walks the top-level fields of an encoded message. Length
// delimited values are passed in v, varints in n.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(l))
		}
		b = b[l:]
		switch typ {
		case protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(l))
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[l:]
		case protowire.VarintType:
			n, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(l))
			}
			if err := fn(num, typ, nil, n); err != nil {
				return err
			}
			b = b[l:]
		default:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(l))
			}
			b = b[l:]
		}
	}
	return nil
}

func encodeName(c unit.DepClass, n names.Name) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldNameClass, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c))
	switch n := n.(type) {
	case names.QName:
		b = protowire.AppendTag(b, fieldNameLocal, protowire.BytesType)
		b = protowire.AppendString(b, n.Local)
		b = protowire.AppendTag(b, fieldNameNamespace, protowire.BytesType)
		b = protowire.AppendString(b, n.Namespace)
		b = protowire.AppendTag(b, fieldNameQualified, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	case names.MultiName:
		b = protowire.AppendTag(b, fieldNameLocal, protowire.BytesType)
		b = protowire.AppendString(b, n.Local)
		b = appendStrings(b, fieldNameNamespace, n.Namespaces)
	}
	return b
}

func decodeName(b []byte) (unit.DepClass, names.Name, error) {
	var (
		class      unit.DepClass
		local      string
		namespaces []string
		qualified  bool
	)
	err := eachField(b, func(num protowire.Number, _ protowire.Type, v []byte, n uint64) error {
		switch num {
		case fieldNameClass:
			class = unit.DepClass(n)
		case fieldNameLocal:
			local = string(v)
		case fieldNameNamespace:
			namespaces = append(namespaces, string(v))
		case fieldNameQualified:
			qualified = n == 1
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if qualified {
		if len(namespaces) != 1 {
			return 0, nil, fmt.Errorf("qualified name %s has %d namespaces", local, len(namespaces))
		}
		return class, names.NewQName(namespaces[0], local), nil
	}
	return class, names.MultiName{Namespaces: namespaces, Local: local}, nil
}

func decodeHistory(u *unit.Unit, b []byte) error {
	var (
		class unit.DepClass
		m     names.MultiName
		q     names.QName
	)
	err := eachField(b, func(num protowire.Number, _ protowire.Type, v []byte, n uint64) error {
		switch num {
		case fieldHistoryClass:
			class = unit.DepClass(n)
		case fieldHistoryName:
			_, name, err := decodeName(v)
			if err != nil {
				return err
			}
			multi, ok := name.(names.MultiName)
			if !ok {
				return fmt.Errorf("history entry %s is not a multi-name", name.Key())
			}
			m = multi
		case fieldHistoryQName:
			q = names.ParseQName(string(v))
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.History(class).Put(m, q)
	return nil
}

func decodeTypeInfo(b []byte) (*unit.TypeInfo, error) {
	ti := &unit.TypeInfo{}
	err := eachField(b, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldTypeInfoSlot:
			ti.Slot = string(v)
		case fieldTypeInfoSignature:
			ti.Signature = string(v)
		case fieldTypeInfoDef:
			ti.Definitions = append(ti.Definitions, names.ParseQName(string(v)))
		case fieldTypeInfoData:
			ti.Data = append([]byte(nil), v...)
		}
		return nil
	})
	return ti, err
}

func encodePair(k, v string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPairKey, protowire.BytesType)
	b = protowire.AppendString(b, k)
	b = protowire.AppendTag(b, fieldPairValue, protowire.BytesType)
	b = protowire.AppendString(b, v)
	return b
}

func decodePair(b []byte) (string, string, error) {
	var k, v string
	err := eachField(b, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		switch num {
		case fieldPairKey:
			k = string(val)
		case fieldPairValue:
			v = string(val)
		}
		return nil
	})
	return k, v, err
}

func appendStrings(b []byte, num protowire.Number, values []string) []byte {
	for _, v := range values {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendQNames(b []byte, num protowire.Number, qs []names.QName) []byte {
	for _, q := range qs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, qkey(q))
	}
	return b
}

// qkey always carries the separator so a local name with dots in the unnamed
// namespace survives names.ParseQName.
func qkey(q names.QName) string {
	return q.Namespace + ":" + q.Local
}

package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the column names from the "db" tags of T, in
// field order, descending into embedded structs. Fields tagged "-" or
// untagged are skipped. Repositories call it once at construction.
//
//	columns := ExtractDBColumns[stock.Movement]()
//	// ["id", "product_id", "warehouse_id", "movement_type", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	return getOrCreateTypeMetadata(reflect.TypeOf(zero)).columns()
}

type fieldInfo struct {
	index int
	dbTag string
}

type typeMetadata struct {
	fields   []fieldInfo
	embedded []int
	typ      reflect.Type
}

func (m *typeMetadata) columns() []string {
	var cols []string
	for i := 0; i < m.typ.NumField(); i++ {
		if m.isEmbedded(i) {
			cols = append(cols, getOrCreateTypeMetadata(m.typ.Field(i).Type).columns()...)
			continue
		}
		for _, f := range m.fields {
			if f.index == i {
				cols = append(cols, f.dbTag)
			}
		}
	}
	return cols
}

func (m *typeMetadata) isEmbedded(i int) bool {
	for _, e := range m.embedded {
		if e == i {
			return true
		}
	}
	return false
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{typ: t}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.embedded = append(meta.embedded, i)
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// StructToMap converts a struct to a column → value map using "db" tags,
// ready for squirrel's SetMap. Non-struct values yield nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := getOrCreateTypeMetadata(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.dbTag] = rv.Field(fi.index).Interface()
	}
	for _, embIdx := range meta.embedded {
		for k, v := range StructToMap(rv.Field(embIdx).Interface()) {
			res[k] = v
		}
	}
	return res
}

// Values returns the values of m in the order of columns.
func Values(m map[string]any, columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = m[c]
	}
	return out
}

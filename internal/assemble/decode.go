// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package assemble

import (
	"reflect"

	"github.com/canonical/sqlcrud/internal/sqlgen"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// decoder maps the columns of a result set onto the fields of a model. It is
// built once per result set from the column names the backend reports.
type decoder struct {
	info *typeinfo.Info
	cols []string
	// fields holds the field index of each column, or -1 for pivot keys.
	fields []int
	// pivot holds, per pivot key, the column index and the type to scan
	// into. It is nil outside pivot capture mode.
	pivot []pivotKey
}

type pivotKey struct {
	col int
	typ reflect.Type
}

// newDecoder returns a decoder of rows with the columns cols into values of
// info. If keyTypes is set the decoder captures the pivot key columns,
// scanning them into values of those types.
func newDecoder(info *typeinfo.Info, cols []string, keyTypes []reflect.Type) (*decoder, error) {
	d := &decoder{info: info, cols: cols, fields: make([]int, len(cols))}
	if keyTypes != nil {
		d.pivot = make([]pivotKey, len(keyTypes))
		for i := range d.pivot {
			d.pivot[i] = pivotKey{col: -1, typ: keyTypes[i]}
		}
	}
	for i, col := range cols {
		if d.pivot != nil {
			switch col {
			case sqlgen.PivotKey0:
				d.pivot[0].col, d.fields[i] = i, -1
				continue
			case sqlgen.PivotKey1:
				d.pivot[1].col, d.fields[i] = i, -1
				continue
			}
		}
		f, ok := info.Column(col)
		if !ok {
			return nil, decodeErrorf("column %q does not match a field of %q", col, info.Type.Name())
		}
		d.fields[i] = f.Index
	}
	for _, k := range d.pivot {
		if k.col < 0 {
			return nil, decodeErrorf("pivot key column missing for %q", info.Type.Name())
		}
	}
	return d, nil
}

// decode scans the current row of rr into dest, an addressable value of the
// model type. In pivot capture mode the key values are returned, in the order
// of the pivot keys.
func (d *decoder) decode(rr RowReader, dest reflect.Value) ([]reflect.Value, error) {
	ptrs := make([]any, len(d.cols))
	var proxies []*typeinfo.ScanProxy
	for i, idx := range d.fields {
		if idx < 0 {
			continue
		}
		ptr, proxy := typeinfo.ScanTarget(dest.Field(idx))
		ptrs[i] = ptr
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	var keys []reflect.Value
	for _, k := range d.pivot {
		key := reflect.New(k.typ).Elem()
		ptr, proxy := typeinfo.ScanTarget(key)
		ptrs[k.col] = ptr
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
		keys = append(keys, key)
	}
	if err := rr.Scan(ptrs...); err != nil {
		return nil, &DecodeError{Err: err}
	}
	for _, proxy := range proxies {
		proxy.OnSuccess()
	}
	return keys, nil
}

// keyOf returns the value of a key field usable as a map key. Pointer keys
// are dereferenced, and a nil pointer never matches.
func keyOf(v reflect.Value) (any, bool) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return v.Interface(), true
}

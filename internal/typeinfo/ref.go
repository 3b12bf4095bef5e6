// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"
)

// Ref is a property reference: a function taking a pointer to a model and
// returning a pointer to one of its fields, e.g.
//
//	func(p *Person) *int { return &p.ID }
//
// The result type may also be any, as long as the dynamic value is a pointer
// to the field.
type Ref = any

// Resolve maps a property reference to the field it points at. The reference
// is called on a zero instance of the type, the returned pointer is then
// matched by offset and type against the fields of the type.
func (info *Info) Resolve(ref Ref) (Field, error) {
	if ref == nil {
		return Field{}, errors.Errorf("nil property reference on %q", info.Type.Name())
	}
	fn := reflect.ValueOf(ref)
	ft := fn.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() != 1 || ft.NumOut() != 1 || fn.IsNil() {
		return Field{}, errors.Errorf("property reference on %q must be a func(*%s) returning a field pointer, got %s",
			info.Type.Name(), info.Type.Name(), ft)
	}
	if ft.In(0) != reflect.PointerTo(info.Type) {
		return Field{}, errors.Errorf("property reference takes %s, want *%s", ft.In(0), info.Type.Name())
	}

	instance := reflect.New(info.Type)
	out := fn.Call([]reflect.Value{instance})[0]
	if out.Kind() == reflect.Interface {
		out = out.Elem()
	}
	if !out.IsValid() || out.Kind() != reflect.Pointer || out.IsNil() {
		return Field{}, errors.Errorf("property reference on %q does not return a field pointer", info.Type.Name())
	}

	base := instance.Pointer()
	addr := out.Pointer()
	if addr < base || addr >= base+info.Type.Size() {
		return Field{}, errors.Errorf("property reference on %q points outside the instance", info.Type.Name())
	}
	offset := addr - base
	target := out.Type().Elem()
	for _, f := range info.Fields {
		if f.Offset == offset && f.Type == target {
			return f, nil
		}
	}
	return Field{}, errors.Errorf("property reference on %q does not name an exported field", info.Type.Name())
}

// ResolveColumn maps a property reference to the column name of the field it
// points at. It fails if the field is not stored in a column.
func (info *Info) ResolveColumn(ref Ref) (string, error) {
	f, err := info.Resolve(ref)
	if err != nil {
		return "", err
	}
	if !f.IsColumn() {
		return "", errors.Errorf("field %q of %q has no db tag", f.Name, info.Type.Name())
	}
	return f.Column, nil
}

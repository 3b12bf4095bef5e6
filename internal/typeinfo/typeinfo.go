// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

var tableNamerInterface = reflect.TypeOf((*TableNamer)(nil)).Elem()

// GetTypeInfo will return the Info of a given type,
// generating and caching as required.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return &Info{}, fmt.Errorf("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	// Another goroutine may have generated the same info in the meantime,
	// keep the first one so pointers handed out stay stable.
	if existing, ok := cache[t]; ok {
		info = existing
	} else {
		cache[t] = info
	}
	cacheMutex.Unlock()

	return info, nil
}

// TypeInfoOf returns the Info of the type of value.
func TypeInfoOf(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, fmt.Errorf("cannot reflect nil value")
	}
	return GetTypeInfo(reflect.TypeOf(value))
}

// generate produces and returns reflection information for the input
// reflect.Type that is specifically required for sqlcrud operation.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}
	if typ.Name() == "" {
		return &Info{}, fmt.Errorf("cannot reflect anonymous struct")
	}

	info := Info{
		TagToField: make(map[string]Field),
		FieldToTag: make(map[string]string),
		Type:       typ,
		Table:      typ.Name(),
	}
	if name, ok := explicitTableName(typ); ok {
		info.Table = name
		info.ExplicitTable = true
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		f := Field{
			Name:   field.Name,
			Index:  i,
			Offset: field.Offset,
			Type:   field.Type,
		}
		// Fields without a "db" tag are not stored in a column but can
		// still be referenced, e.g. as the target of a join.
		if tag := field.Tag.Get("db"); tag != "" {
			tag, omitEmpty, err := parseTag(tag)
			if err != nil {
				return &Info{}, err
			}
			if _, ok := info.TagToField[tag]; ok {
				return &Info{}, fmt.Errorf("db tag %q appears more than once in %q", tag, typ.Name())
			}
			f.Column = tag
			f.OmitEmpty = omitEmpty
			info.TagToField[tag] = f
			info.FieldToTag[field.Name] = tag
		}
		info.Fields = append(info.Fields, f)
	}
	if len(info.TagToField) == 0 {
		return &Info{}, fmt.Errorf("type %q has no db tags", typ.Name())
	}

	return &info, nil
}

// explicitTableName calls TableName on a zero value of typ if the type, or a
// pointer to it, implements TableNamer.
func explicitTableName(typ reflect.Type) (string, bool) {
	switch {
	case typ.Implements(tableNamerInterface):
		return reflect.Zero(typ).Interface().(TableNamer).TableName(), true
	case reflect.PointerTo(typ).Implements(tableNamerInterface):
		return reflect.New(typ).Interface().(TableNamer).TableName(), true
	}
	return "", false
}

// This expression should be aligned with the identifiers the dialects are
// able to quote.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, fmt.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, fmt.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name in 'db' tag")
	}

	return name, omitEmpty, nil
}

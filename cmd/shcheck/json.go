// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"io"
	"reflect"

	"mvdan.cc/bashmodel/script"
)

// offsetFields are the int fields holding source offsets, which are
// written as positions.
var offsetFields = map[string]bool{
	"Start":     true,
	"End":       true,
	"NameStart": true,
	"Offset":    true,
}

func writeJSON(w io.Writer, m *script.Model, pretty bool) error {
	jw := jsonWriter{m: m}
	v := jw.recurse(reflect.ValueOf(m))
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "\t")
	}
	return enc.Encode(v)
}

type jsonWriter struct {
	m *script.Model
}

func (jw jsonWriter) recurse(val reflect.Value) interface{} {
	if s, ok := val.Interface().(fmt.Stringer); ok && val.Kind() == reflect.Int {
		// enum-like kinds and severities
		return s.String()
	}
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			return nil
		}
		return jw.recurse(val.Elem())
	case reflect.Struct:
		m := make(map[string]interface{}, val.NumField())
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			ftyp := typ.Field(i)
			if !ast.IsExported(ftyp.Name) {
				continue
			}
			fval := val.Field(i)
			switch {
			case fval.Kind() == reflect.Int && offsetFields[ftyp.Name]:
				m[ftyp.Name] = jw.translatePos(int(fval.Int()))
			case fval.Kind() == reflect.Slice && fval.Len() == 0:
				// omit empty lists
			default:
				m[ftyp.Name] = jw.recurse(fval)
			}
		}
		return m
	case reflect.Slice:
		l := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			l[i] = jw.recurse(val.Index(i))
		}
		return l
	default:
		return val.Interface()
	}
}

// translatePos returns nil for negative offsets, used for constructs which
// were never closed.
func (jw jsonWriter) translatePos(offset int) interface{} {
	if offset < 0 {
		return nil
	}
	pos := jw.m.Position(offset)
	return map[string]interface{}{
		"Offset": pos.Offset,
		"Line":   pos.Line,
		"Col":    pos.Column,
	}
}

package serializer

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// normalize walks v (a pointer to the deserialized value) and rewrites every
// time.Time it finds according to s.kind. Structs, slices, arrays, maps, and
// pointers are descended into; unexported fields are left untouched.
func (s *Serializer) normalize(v any) {
	if s.kind == KindNone {
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return
	}
	normalizeValue(rv.Elem(), s.kind)
}

func normalizeValue(v reflect.Value, kind DateTimeKind) {
	if !v.IsValid() {
		return
	}

	switch v.Kind() {
	case reflect.Ptr:
		if !v.IsNil() {
			normalizeValue(v.Elem(), kind)
		}
	case reflect.Struct:
		if v.Type() == timeType {
			if v.CanSet() {
				v.Set(reflect.ValueOf(applyKind(v.Interface().(time.Time), kind)))
			}
			return
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if f.CanSet() {
				normalizeValue(f, kind)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			normalizeValue(v.Index(i), kind)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Type() == timeType {
				v.SetMapIndex(key, reflect.ValueOf(applyKind(elem.Interface().(time.Time), kind)))
				continue
			}
			if elem.Kind() == reflect.Struct || elem.Kind() == reflect.Ptr {
				addressable := reflect.New(elem.Type()).Elem()
				addressable.Set(elem)
				normalizeValue(addressable, kind)
				v.SetMapIndex(key, addressable)
			}
		}
	case reflect.Interface:
		if !v.IsNil() && v.Elem().Type() == timeType && v.CanSet() {
			v.Set(reflect.ValueOf(applyKind(v.Elem().Interface().(time.Time), kind)))
		}
	}
}

// applyKind converts t per spec.md §4.1: UTC and Local perform a real
// offset conversion; Unspecified re-tags the wall-clock fields without
// converting the represented instant.
func applyKind(t time.Time, kind DateTimeKind) time.Time {
	switch kind {
	case KindUTC:
		return t.UTC()
	case KindLocal:
		return t.In(time.Local)
	case KindUnspecified:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	default:
		return t
	}
}

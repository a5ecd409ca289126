package store

import (
	"reflect"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/statekit/errs"
)

// Identical reports whether two snapshots are the same value by identity.
// Pointer-like kinds compare by pointer; comparable value kinds compare with
// ==, which is the closest Go rendition of referential identity for values.
// This is the predicate the store uses to drop no-op mutations.
func Identical(a, b any) bool {
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		if va.Len() != vb.Len() {
			return false
		}
		if va.Len() == 0 {
			return va.IsNil() == vb.IsNil()
		}
		return va.Pointer() == vb.Pointer()
	default:
		if va.Type().Comparable() {
			return a == b
		}
		return false
	}
}

// recordLike reports whether v composes named fields that can be merged
// shallowly. Only struct and map kinds qualify; pointers replace wholesale.
func recordLike(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Struct, reflect.Map:
		return true
	default:
		return false
	}
}

// mergeCandidate computes the next snapshot from the current one and a
// resolved candidate. With full set, or a non record-like candidate, the
// candidate wins outright. Otherwise the merge is shallow: candidate fields
// overwrite, untouched fields carry over, nested values are never descended
// into.
func mergeCandidate[S any](current S, candidate any, full bool) S {
	if typed, ok := candidate.(S); ok {
		cv := reflect.ValueOf(typed)
		if full || !cv.IsValid() || !recordLike(cv) {
			return typed
		}
		return shallowMergeTyped(current, typed)
	}

	patch, ok := candidate.(map[string]any)
	if !ok {
		panic(errs.New("core/store", errs.CodeInvalid,
			errs.WithMessage("candidate is neither the state type nor a field patch")))
	}
	var base S
	if !full {
		base = current
	}
	return applyPatch(base, patch)
}

// shallowMergeTyped merges a typed candidate over the current snapshot. For
// struct snapshots the Go partial convention applies: zero-valued candidate
// fields are treated as absent and preserved from the current snapshot. Use a
// map[string]any patch to set a field to its zero value explicitly.
func shallowMergeTyped[S any](current, candidate S) S {
	cv := reflect.ValueOf(candidate)
	switch cv.Kind() {
	case reflect.Struct:
		out := current
		ov := reflect.ValueOf(&out).Elem()
		for i := 0; i < cv.NumField(); i++ {
			field := cv.Field(i)
			if field.IsZero() {
				continue
			}
			target := ov.Field(i)
			if target.CanSet() {
				target.Set(field)
			}
		}
		return out
	case reflect.Map:
		base := reflect.ValueOf(current)
		out := reflect.MakeMapWithSize(cv.Type(), cv.Len())
		if base.IsValid() && base.Kind() == reflect.Map && !base.IsNil() {
			iter := base.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), iter.Value())
			}
		}
		iter := cv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface().(S)
	default:
		return candidate
	}
}

// applyPatch writes patch entries onto base field-by-field. Struct fields
// match by json tag first, then exact name, then a case-insensitive fallback.
// Keys with no matching field are ignored.
func applyPatch[S any](base S, patch map[string]any) S {
	out := base
	ov := reflect.ValueOf(&out).Elem()
	switch ov.Kind() {
	case reflect.Struct:
		t := ov.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			value, present := lookupPatch(patch, field)
			if !present {
				continue
			}
			assignField(ov.Field(i), value)
		}
		return out
	case reflect.Map:
		mapType := ov.Type()
		merged := reflect.MakeMapWithSize(mapType, len(patch))
		if !ov.IsNil() {
			iter := ov.MapRange()
			for iter.Next() {
				merged.SetMapIndex(iter.Key(), iter.Value())
			}
		}
		elemType := mapType.Elem()
		for key, value := range patch {
			kv := reflect.ValueOf(key)
			if !kv.Type().AssignableTo(mapType.Key()) {
				continue
			}
			converted, ok := coerce(value, elemType)
			if !ok {
				continue
			}
			merged.SetMapIndex(kv, converted)
		}
		ov.Set(merged)
		return out
	default:
		panic(errs.New("core/store", errs.CodeInvalid,
			errs.WithMessage("field patch applied to a non record-like state type")))
	}
}

func lookupPatch(patch map[string]any, field reflect.StructField) (any, bool) {
	if tag := jsonName(field); tag != "" {
		if value, ok := patch[tag]; ok {
			return value, true
		}
	}
	if value, ok := patch[field.Name]; ok {
		return value, true
	}
	for key, value := range patch {
		if strings.EqualFold(key, field.Name) {
			return value, true
		}
	}
	return nil, false
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

func assignField(target reflect.Value, value any) {
	if !target.CanSet() {
		return
	}
	converted, ok := coerce(value, target.Type())
	if !ok {
		return
	}
	target.Set(converted)
}

// coerce adapts a patch value to the target type. Direct assignment wins,
// numeric kinds convert (JSON decoding yields float64), and composite values
// round-trip through the JSON codec so decoded map/slice shapes land in typed
// fields.
func coerce(value any, target reflect.Type) (reflect.Value, bool) {
	if value == nil {
		return reflect.Zero(target), true
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, true
	}
	if isNumericKind(v.Kind()) && isNumericKind(target.Kind()) {
		return v.Convert(target), true
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		raw, err := json.Marshal(value)
		if err != nil {
			return reflect.Value{}, false
		}
		dst := reflect.New(target)
		if err := json.Unmarshal(raw, dst.Interface()); err != nil {
			return reflect.Value{}, false
		}
		return dst.Elem(), true
	default:
		return reflect.Value{}, false
	}
}

func isNumericKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

package neogm

import (
	"fmt"
	"math"
	"reflect"
)

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isScalarType accepts scalars, pointers to scalars and lists of scalars.
func isScalarType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr:
		return isScalarKind(t.Elem().Kind())
	case reflect.Slice:
		return isScalarKind(t.Elem().Kind())
	default:
		return isScalarKind(t.Kind())
	}
}

// toStoreValue normalises a field value to what the store accepts: int64,
// float64, bool, string or []any of those. Nil pointers and nil slices become
// nil. Unsigned values above math.MaxInt64 have no int64 form and are rejected.
func toStoreValue(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		return toStoreValue(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		list := make([]any, v.Len())
		for i := range list {
			elem, err := toStoreValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = elem
		}
		return list, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", v.Uint())
		}
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	}
	return v.Interface(), nil
}

// assign sets field from a value read back from the store, converting the
// store's representation (int64, float64, []any) into the field's Go type.
func assign(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	converted, err := convertValue(field.Type(), value)
	if err != nil {
		return err
	}
	field.Set(converted)
	return nil
}

func convertValue(t reflect.Type, value any) (reflect.Value, error) {
	src := reflect.ValueOf(value)
	switch t.Kind() {
	case reflect.Ptr:
		inner, err := convertValue(t.Elem(), value)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	case reflect.Slice:
		if src.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", value, t)
		}
		out := reflect.MakeSlice(t, src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			elem, err := convertValue(t.Elem(), src.Index(i).Interface())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}

	if src.Type().AssignableTo(t) {
		return src, nil
	}
	if isNumericKind(src.Kind()) && isNumericKind(t.Kind()) {
		return convertNumber(src, t)
	}
	if src.Kind() == t.Kind() {
		return src.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", value, t)
}

func isNumericKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64 && k != reflect.Uintptr
}

// convertNumber converts between numeric kinds and fails instead of
// truncating: out-of-range values and fractional floats bound for integer
// fields are errors.
func convertNumber(src reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch {
	case src.CanInt():
		n := src.Int()
		switch {
		case out.CanInt():
			if out.OverflowInt(n) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetInt(n)
		case out.CanUint():
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
	case src.CanUint():
		n := src.Uint()
		switch {
		case out.CanInt():
			if n > math.MaxInt64 || out.OverflowInt(int64(n)) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetInt(int64(n))
		case out.CanUint():
			if out.OverflowUint(n) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetUint(n)
		default:
			out.SetFloat(float64(n))
		}
	default:
		f := src.Float()
		if out.CanFloat() {
			if out.OverflowFloat(f) {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetFloat(f)
			break
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return reflect.Value{}, fmt.Errorf("%g is not a whole number for %s", f, t)
		}
		if out.CanInt() {
			if f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetInt(int64(f))
		} else {
			if f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetUint(uint64(f))
		}
	}
	return out, nil
}

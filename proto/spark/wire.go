package spark

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// OneofMessage is implemented by messages holding a oneof. It lists the
// wrapper types the oneof field may carry, one per alternative.
type OneofMessage interface {
	OneofWrappers() []any
}

type fieldInfo struct {
	num   protowire.Number
	index int
	// wrapper is the oneof wrapper struct for this number, nil for plain fields.
	wrapper reflect.Type
}

type messageInfo struct {
	ordered  []*fieldInfo
	byNumber map[protowire.Number]*fieldInfo
}

var (
	messageInfos sync.Map // reflect.Type -> *messageInfo
	timeType     = reflect.TypeFor[time.Time]()
)

// Marshal encodes msg, a pointer to a message struct, in the protobuf binary
// format. Fields are written in field number order and map entries in key
// order, so the output is deterministic.
func Marshal(msg any) ([]byte, error) {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Pointer || v.Type().Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot marshal %T: not a pointer to a message", msg)
	}
	if v.IsNil() {
		return nil, nil
	}
	return marshalMessage(nil, v.Elem())
}

// Unmarshal decodes data into msg, a pointer to a message struct. msg is reset
// first. Unknown fields are skipped.
func Unmarshal(data []byte, msg any) error {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem().Kind() != reflect.Struct {
		return fmt.Errorf("cannot unmarshal into %T: not a pointer to a message", msg)
	}
	v.Elem().SetZero()
	return unmarshalMessage(data, v.Elem())
}

func messageInfoOf(t reflect.Type) (*messageInfo, error) {
	if cached, ok := messageInfos.Load(t); ok {
		return cached.(*messageInfo), nil
	}
	info := &messageInfo{byNumber: make(map[protowire.Number]*fieldInfo)}
	add := func(f *fieldInfo) error {
		if _, dup := info.byNumber[f.num]; dup {
			return fmt.Errorf("%s: field number %d used twice", t, f.num)
		}
		info.byNumber[f.num] = f
		info.ordered = append(info.ordered, f)
		return nil
	}
	for i := range t.NumField() {
		sf := t.Field(i)
		if tag, ok := sf.Tag.Lookup("protobuf"); ok {
			num, err := parseFieldNumber(tag)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t, sf.Name, err)
			}
			if err := add(&fieldInfo{num: num, index: i}); err != nil {
				return nil, err
			}
			continue
		}
		if _, ok := sf.Tag.Lookup("protobuf_oneof"); !ok {
			continue
		}
		oneof, ok := reflect.New(t).Interface().(OneofMessage)
		if !ok {
			return nil, fmt.Errorf("%s has oneof %s but no wrappers", t, sf.Name)
		}
		for _, wrapper := range oneof.OneofWrappers() {
			wt := reflect.TypeOf(wrapper)
			if !wt.Implements(sf.Type) {
				continue
			}
			num, err := parseFieldNumber(wt.Elem().Field(0).Tag.Get("protobuf"))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", wt.Elem(), err)
			}
			if err := add(&fieldInfo{num: num, index: i, wrapper: wt.Elem()}); err != nil {
				return nil, err
			}
		}
	}
	slices.SortFunc(info.ordered, func(a, b *fieldInfo) int { return int(a.num) - int(b.num) })
	actual, _ := messageInfos.LoadOrStore(t, info)
	return actual.(*messageInfo), nil
}

// parseFieldNumber reads the number out of a tag like "bytes,3,opt,name=value,proto3".
func parseFieldNumber(tag string) (protowire.Number, error) {
	parts := strings.Split(tag, ",")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed protobuf tag %q", tag)
	}
	num, err := strconv.Atoi(parts[1])
	if err != nil || !protowire.Number(num).IsValid() {
		return 0, fmt.Errorf("invalid field number in protobuf tag %q", tag)
	}
	return protowire.Number(num), nil
}

func marshalMessage(b []byte, v reflect.Value) ([]byte, error) {
	info, err := messageInfoOf(v.Type())
	if err != nil {
		return nil, err
	}
	for _, f := range info.ordered {
		fv := v.Field(f.index)
		if f.wrapper != nil {
			if fv.IsNil() || fv.Elem().Type().Elem() != f.wrapper || fv.Elem().IsNil() {
				continue
			}
			if b, err = appendValue(b, f.num, fv.Elem().Elem().Field(0), true); err != nil {
				return nil, err
			}
			continue
		}
		if b, err = appendField(b, f.num, fv); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendField(b []byte, num protowire.Number, v reflect.Value) ([]byte, error) {
	var err error
	switch {
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8:
		if v.Len() == 0 {
			return b, nil
		}
		if isVarint(v.Type().Elem().Kind()) {
			var packed []byte
			for i := range v.Len() {
				packed = protowire.AppendVarint(packed, varintOf(v.Index(i)))
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			return protowire.AppendBytes(b, packed), nil
		}
		for i := range v.Len() {
			if b, err = appendValue(b, num, v.Index(i), true); err != nil {
				return nil, err
			}
		}
		return b, nil
	case v.Kind() == reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, compareMapKeys)
		for _, key := range keys {
			entry, err := appendValue(nil, 1, key, true)
			if err != nil {
				return nil, err
			}
			if entry, err = appendValue(entry, 2, v.MapIndex(key), true); err != nil {
				return nil, err
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, entry)
		}
		return b, nil
	default:
		return appendValue(b, num, v, false)
	}
}

// appendValue writes a single value. Zero scalars are skipped unless force is
// set, which repeated elements, map entries and explicit presence require.
func appendValue(b []byte, num protowire.Number, v reflect.Value, force bool) ([]byte, error) {
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() && !force {
			return b, nil
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendBytes(b, appendTimestamp(nil, t)), nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.Type().Elem().Kind() == reflect.Struct {
			if v.IsNil() && !force {
				return b, nil
			}
			var inner []byte
			if !v.IsNil() {
				var err error
				if inner, err = marshalMessage(nil, v.Elem()); err != nil {
					return nil, err
				}
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			return protowire.AppendBytes(b, inner), nil
		}
		if v.IsNil() {
			return b, nil
		}
		return appendValue(b, num, v.Elem(), true)
	case reflect.String:
		if v.Len() == 0 && !force {
			return b, nil
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendString(b, v.String()), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return nil, fmt.Errorf("field %d: nested repeated fields are not supported", num)
		}
		if v.Len() == 0 && !force {
			return b, nil
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendBytes(b, v.Bytes()), nil
	default:
		if !isVarint(v.Kind()) {
			return nil, fmt.Errorf("field %d: unsupported kind %s", num, v.Kind())
		}
		if v.IsZero() && !force {
			return b, nil
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		return protowire.AppendVarint(b, varintOf(v)), nil
	}
}

// appendTimestamp encodes t as a google.protobuf.Timestamp.
func appendTimestamp(b []byte, t time.Time) []byte {
	if seconds := t.Unix(); seconds != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(seconds))
	}
	if nanos := t.Nanosecond(); nanos != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(nanos)))
	}
	return b
}

func isVarint(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool, reflect.Int32, reflect.Int64, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func varintOf(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Bool:
		return protowire.EncodeBool(v.Bool())
	case reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	default:
		return v.Uint()
	}
}

func compareMapKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return strings.Compare(a.String(), b.String())
	case reflect.Int32, reflect.Int64:
		return cmpOrdered(a.Int(), b.Int())
	default:
		return cmpOrdered(a.Uint(), b.Uint())
	}
}

func cmpOrdered[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func unmarshalMessage(b []byte, v reflect.Value) error {
	info, err := messageInfoOf(v.Type())
	if err != nil {
		return err
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f, ok := info.byNumber[num]
		if !ok {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		target := v.Field(f.index)
		if f.wrapper != nil {
			wrapper := reflect.New(f.wrapper)
			if n, err = consumeValue(b, num, typ, wrapper.Elem().Field(0)); err != nil {
				return err
			}
			target.Set(wrapper)
		} else if n, err = consumeValue(b, num, typ, target); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// consumeValue decodes one occurrence of a field into v and returns the number
// of bytes read. Repeated fields append and maps gain one entry.
func consumeValue(b []byte, num protowire.Number, typ protowire.Type, v reflect.Value) (int, error) {
	if v.Type() == timeType {
		data, n, err := consumeBytes(b, num, typ)
		if err != nil {
			return 0, err
		}
		t, err := parseTimestamp(data)
		if err != nil {
			return 0, fmt.Errorf("field %d: %w", num, err)
		}
		v.Set(reflect.ValueOf(t))
		return n, nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.Type().Elem().Kind() == reflect.Struct {
			data, n, err := consumeBytes(b, num, typ)
			if err != nil {
				return 0, err
			}
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			return n, unmarshalMessage(data, v.Elem())
		}
		elem := reflect.New(v.Type().Elem())
		n, err := consumeValue(b, num, typ, elem.Elem())
		if err != nil {
			return 0, err
		}
		v.Set(elem)
		return n, nil
	case reflect.String:
		data, n, err := consumeBytes(b, num, typ)
		if err != nil {
			return 0, err
		}
		v.SetString(string(data))
		return n, nil
	case reflect.Slice:
		elemType := v.Type().Elem()
		if elemType.Kind() == reflect.Uint8 {
			data, n, err := consumeBytes(b, num, typ)
			if err != nil {
				return 0, err
			}
			v.SetBytes(append([]byte{}, data...))
			return n, nil
		}
		if isVarint(elemType.Kind()) && typ == protowire.BytesType {
			packed, n, err := consumeBytes(b, num, typ)
			if err != nil {
				return 0, err
			}
			for len(packed) > 0 {
				x, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return 0, protowire.ParseError(m)
				}
				elem := reflect.New(elemType).Elem()
				setVarint(elem, x)
				v.Set(reflect.Append(v, elem))
				packed = packed[m:]
			}
			return n, nil
		}
		elem := reflect.New(elemType).Elem()
		n, err := consumeValue(b, num, typ, elem)
		if err != nil {
			return 0, err
		}
		v.Set(reflect.Append(v, elem))
		return n, nil
	case reflect.Map:
		data, n, err := consumeBytes(b, num, typ)
		if err != nil {
			return 0, err
		}
		key, val, err := consumeMapEntry(data, v.Type())
		if err != nil {
			return 0, fmt.Errorf("field %d: %w", num, err)
		}
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		v.SetMapIndex(key, val)
		return n, nil
	default:
		if !isVarint(v.Kind()) {
			return 0, fmt.Errorf("field %d: unsupported kind %s", num, v.Kind())
		}
		if typ != protowire.VarintType {
			return 0, fmt.Errorf("field %d: expected varint, got wire type %d", num, typ)
		}
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		setVarint(v, x)
		return n, nil
	}
}

func consumeBytes(b []byte, num protowire.Number, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("field %d: expected length-delimited, got wire type %d", num, typ)
	}
	data, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return data, n, nil
}

func consumeMapEntry(b []byte, mapType reflect.Type) (reflect.Value, reflect.Value, error) {
	key := reflect.New(mapType.Key()).Elem()
	val := reflect.New(mapType.Elem()).Elem()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return key, val, protowire.ParseError(n)
		}
		b = b[n:]
		var err error
		switch num {
		case 1:
			n, err = consumeValue(b, num, typ, key)
		case 2:
			n, err = consumeValue(b, num, typ, val)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				err = protowire.ParseError(n)
			}
		}
		if err != nil {
			return key, val, err
		}
		b = b[n:]
	}
	if val.Kind() == reflect.Pointer && val.IsNil() && val.Type().Elem().Kind() == reflect.Struct {
		val.Set(reflect.New(val.Type().Elem()))
	}
	return key, val, nil
}

func setVarint(v reflect.Value, x uint64) {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(protowire.DecodeBool(x))
	case reflect.Int32:
		v.SetInt(int64(int32(x)))
	case reflect.Int64:
		v.SetInt(int64(x))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(x)))
	default:
		v.SetUint(x)
	}
}

func parseTimestamp(b []byte) (time.Time, error) {
	var seconds, nanos int64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return time.Time{}, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return time.Time{}, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return time.Time{}, protowire.ParseError(n)
		}
		switch num {
		case 1:
			seconds = int64(x)
		case 2:
			nanos = int64(int32(x))
		}
		b = b[n:]
	}
	return time.Unix(seconds, nanos).UTC(), nil
}

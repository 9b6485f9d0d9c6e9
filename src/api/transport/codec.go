package transport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrCodec = errors.New("codec error")

// EventCodec turns an event name and its arguments into a payload and back.
type EventCodec interface {
	Serialize(event string, args ...any) ([]byte, error)
	Deserialize(payload []byte) (string, []any, error)
}

// ProtoCodec encodes [event, args...] as a protobuf ListValue. Every
// argument is wrapped as {t: kind, v: value} so it decodes to the same Go
// type it was encoded from. Supported kinds are nil, bool, string, the
// sized and unsized ints and uints, float32, float64, []byte, []any and
// map[string]any (nested values follow the same rules). Anything else is
// rejected with ErrCodec.
type ProtoCodec struct{}

var _ EventCodec = ProtoCodec{}

const (
	kindNil     = "nil"
	kindBool    = "bool"
	kindString  = "string"
	kindInt     = "int"
	kindInt8    = "int8"
	kindInt16   = "int16"
	kindInt32   = "int32"
	kindInt64   = "int64"
	kindUint    = "uint"
	kindUint8   = "uint8"
	kindUint16  = "uint16"
	kindUint32  = "uint32"
	kindUint64  = "uint64"
	kindFloat32 = "float32"
	kindFloat64 = "float64"
	kindBytes   = "bytes"
	kindList    = "list"
	kindMap     = "map"
)

func (ProtoCodec) Serialize(event string, args ...any) ([]byte, error) {
	values := make([]*structpb.Value, 0, len(args)+1)
	values = append(values, structpb.NewStringValue(event))
	for i, arg := range args {
		v, err := encodeArg(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: serialize %q arg %d: %v", ErrCodec, event, i, err)
		}
		values = append(values, v)
	}

	out, err := proto.Marshal(&structpb.ListValue{Values: values})
	if err != nil {
		return nil, fmt.Errorf("%w: serialize %q: %v", ErrCodec, event, err)
	}
	return out, nil
}

func (ProtoCodec) Deserialize(payload []byte) (string, []any, error) {
	list := &structpb.ListValue{}
	if err := proto.Unmarshal(payload, list); err != nil {
		return "", nil, fmt.Errorf("%w: deserialize: %v", ErrCodec, err)
	}

	if len(list.Values) == 0 {
		return "", nil, fmt.Errorf("%w: deserialize: empty message", ErrCodec)
	}
	head, ok := list.Values[0].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", nil, fmt.Errorf("%w: deserialize: event name is %T", ErrCodec, list.Values[0].GetKind())
	}

	args := make([]any, 0, len(list.Values)-1)
	for i, v := range list.Values[1:] {
		arg, err := decodeArg(v)
		if err != nil {
			return "", nil, fmt.Errorf("%w: deserialize %q arg %d: %v", ErrCodec, head.StringValue, i, err)
		}
		args = append(args, arg)
	}
	return head.StringValue, args, nil
}

func tagged(kind string, v *structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"t": structpb.NewStringValue(kind),
		"v": v,
	}})
}

func intValue(kind string, n int64) *structpb.Value {
	return tagged(kind, structpb.NewStringValue(strconv.FormatInt(n, 10)))
}

func uintValue(kind string, n uint64) *structpb.Value {
	return tagged(kind, structpb.NewStringValue(strconv.FormatUint(n, 10)))
}

func encodeArg(arg any) (*structpb.Value, error) {
	switch x := arg.(type) {
	case nil:
		return tagged(kindNil, structpb.NewNullValue()), nil
	case bool:
		return tagged(kindBool, structpb.NewBoolValue(x)), nil
	case string:
		return tagged(kindString, structpb.NewStringValue(x)), nil
	case int:
		return intValue(kindInt, int64(x)), nil
	case int8:
		return intValue(kindInt8, int64(x)), nil
	case int16:
		return intValue(kindInt16, int64(x)), nil
	case int32:
		return intValue(kindInt32, int64(x)), nil
	case int64:
		return intValue(kindInt64, x), nil
	case uint:
		return uintValue(kindUint, uint64(x)), nil
	case uint8:
		return uintValue(kindUint8, uint64(x)), nil
	case uint16:
		return uintValue(kindUint16, uint64(x)), nil
	case uint32:
		return uintValue(kindUint32, uint64(x)), nil
	case uint64:
		return uintValue(kindUint64, x), nil
	case float32:
		return tagged(kindFloat32, structpb.NewNumberValue(float64(x))), nil
	case float64:
		return tagged(kindFloat64, structpb.NewNumberValue(x)), nil
	case []byte:
		return tagged(kindBytes, structpb.NewStringValue(base64.StdEncoding.EncodeToString(x))), nil
	case []any:
		items := make([]*structpb.Value, 0, len(x))
		for _, item := range x {
			v, err := encodeArg(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return tagged(kindList, structpb.NewListValue(&structpb.ListValue{Values: items})), nil
	case map[string]any:
		fields := make(map[string]*structpb.Value, len(x))
		for k, item := range x {
			v, err := encodeArg(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			fields[k] = v
		}
		return tagged(kindMap, structpb.NewStructValue(&structpb.Struct{Fields: fields})), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", arg)
	}
}

func decodeArg(v *structpb.Value) (any, error) {
	wrapper := v.GetStructValue()
	if wrapper == nil {
		return nil, errors.New("argument is not tagged")
	}
	kind := wrapper.GetFields()["t"].GetStringValue()
	inner, ok := wrapper.GetFields()["v"]
	if kind == "" || !ok {
		return nil, errors.New("argument tag incomplete")
	}

	switch kind {
	case kindNil:
		return nil, nil
	case kindBool:
		b, ok := inner.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, fmt.Errorf("%s: wrong value kind", kind)
		}
		return b.BoolValue, nil
	case kindString:
		s, ok := inner.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s: wrong value kind", kind)
		}
		return s.StringValue, nil
	case kindInt, kindInt8, kindInt16, kindInt32, kindInt64:
		return decodeInt(kind, inner.GetStringValue())
	case kindUint, kindUint8, kindUint16, kindUint32, kindUint64:
		return decodeUint(kind, inner.GetStringValue())
	case kindFloat32, kindFloat64:
		n, ok := inner.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s: wrong value kind", kind)
		}
		if kind == kindFloat32 {
			if math.Abs(n.NumberValue) > math.MaxFloat32 && !math.IsInf(n.NumberValue, 0) {
				return nil, fmt.Errorf("%s: %v out of range", kind, n.NumberValue)
			}
			return float32(n.NumberValue), nil
		}
		return n.NumberValue, nil
	case kindBytes:
		b, err := base64.StdEncoding.DecodeString(inner.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%s: %v", kind, err)
		}
		return b, nil
	case kindList:
		l := inner.GetListValue()
		if l == nil {
			return nil, fmt.Errorf("%s: wrong value kind", kind)
		}
		out := make([]any, 0, len(l.Values))
		for _, item := range l.Values {
			d, err := decodeArg(item)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case kindMap:
		s := inner.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%s: wrong value kind", kind)
		}
		out := make(map[string]any, len(s.Fields))
		for k, item := range s.Fields {
			d, err := decodeArg(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func decodeInt(kind, s string) (any, error) {
	bits := map[string]int{kindInt: strconv.IntSize, kindInt8: 8, kindInt16: 16, kindInt32: 32, kindInt64: 64}[kind]
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", kind, err)
	}
	switch kind {
	case kindInt:
		return int(n), nil
	case kindInt8:
		return int8(n), nil
	case kindInt16:
		return int16(n), nil
	case kindInt32:
		return int32(n), nil
	default:
		return n, nil
	}
}

func decodeUint(kind, s string) (any, error) {
	bits := map[string]int{kindUint: strconv.IntSize, kindUint8: 8, kindUint16: 16, kindUint32: 32, kindUint64: 64}[kind]
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", kind, err)
	}
	switch kind {
	case kindUint:
		return uint(n), nil
	case kindUint8:
		return uint8(n), nil
	case kindUint16:
		return uint16(n), nil
	case kindUint32:
		return uint32(n), nil
	default:
		return n, nil
	}
}

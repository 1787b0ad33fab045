package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// RefKey is the key of the single-key JSON object that encodes a reference.
const RefKey = "$ref"

// Decode parses JSON text into a value. Numbers keep their full precision.
func Decode(data []byte) (cty.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return cty.NilVal, fmt.Errorf("failed to decode value: %w", err)
	}
	if dec.More() {
		return cty.NilVal, fmt.Errorf("failed to decode value: trailing data after JSON value")
	}
	return FromGo(raw)
}

// FromGo converts the generic form produced by encoding/json (or a transport
// library decoding JSON on our behalf) into a value.
func FromGo(raw any) (cty.Value, error) {
	return fromGo(cty.Path{}, raw)
}

func fromGo(path cty.Path, raw any) (cty.Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null, nil
	case bool:
		return cty.BoolVal(v), nil
	case string:
		return cty.StringVal(v), nil
	case json.Number:
		n, err := cty.ParseNumberVal(v.String())
		if err != nil {
			return cty.NilVal, path.NewErrorf("invalid number %q: %s", v.String(), err)
		}
		return n, nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case float32:
		return cty.NumberFloatVal(float64(v)), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case uint64:
		return cty.NumberUIntVal(v), nil
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(v))
		for i, e := range v {
			ev, err := fromGo(path.Index(cty.NumberIntVal(int64(i))), e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if ref, ok := v[RefKey]; ok && len(v) == 1 {
			s, ok := ref.(string)
			if !ok {
				return cty.NilVal, path.NewErrorf("%s must be a string", RefKey)
			}
			id, err := nodeid.Parse(s)
			if err != nil {
				return cty.NilVal, path.NewError(err)
			}
			return Ref(id), nil
		}
		if len(v) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(v))
		for k, e := range v {
			ev, err := fromGo(path.GetAttr(k), e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, path.NewErrorf("unsupported value of type %T", raw)
	}
}

// Encode renders a value as JSON text.
func Encode(v cty.Value) ([]byte, error) {
	raw, err := ToGo(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// ToGo converts a value into a form encoding/json renders as the wire format.
// Absent encodes as null.
func ToGo(v cty.Value) (any, error) {
	return toGo(cty.Path{}, v)
}

func toGo(path cty.Path, v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, path.NewErrorf("value is not known")
	}
	v, _ = v.Unmark()
	ty := v.Type()
	switch {
	case ty.Equals(RefType):
		id, _ := AsRef(v)
		return map[string]any{RefKey: string(id)}, nil
	case ty.Equals(AbsentType):
		return nil, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		n, err := formatNumber(v.AsBigFloat())
		if err != nil {
			return nil, path.NewError(err)
		}
		return n, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			e, err := toGo(path.GetAttr(k.AsString()), ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = e
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		i := int64(0)
		for it := v.ElementIterator(); it.Next(); i++ {
			_, ev := it.Element()
			e, err := toGo(path.Index(cty.NumberIntVal(i)), ev)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return nil, path.NewErrorf("unsupported type %s", ty.FriendlyName())
	}
}

func formatNumber(f *big.Float) (json.Number, error) {
	if f.IsInf() {
		return "", fmt.Errorf("infinite numbers cannot be encoded")
	}
	if f.IsInt() {
		i, _ := f.Int(nil)
		return json.Number(i.String()), nil
	}
	f64, _ := f.Float64()
	return json.Number(strconv.FormatFloat(f64, 'g', -1, 64)), nil
}

// Format renders v as compact JSON for logs and human-readable output.
func Format(v cty.Value) string {
	b, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("<%s>", err)
	}
	return string(b)
}

// JSON wraps a value so it can be embedded in structs handled by
// encoding/json.
type JSON struct {
	cty.Value
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	return Encode(j.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	j.Value = v
	return nil
}

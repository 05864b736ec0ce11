// Package plan encodes expressions and values as JSON so that they can be
// shipped to a remote backend and back.
package plan

import (
	"math"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireValue is the JSON form of a value. Scalars travel in Value; the
// other fields belong to time ranges, sets and datasets. Dataset rows are
// arrays aligned with Attributes, where JSON null marks an attribute the
// row does not have.
type wireValue struct {
	Type       string              `json:"type"`
	Value      jsoniter.RawMessage `json:"value,omitempty"`
	Start      string              `json:"start,omitempty"`
	End        string              `json:"end,omitempty"`
	Elements   []*wireValue        `json:"elements,omitempty"`
	Attributes []string            `json:"attributes,omitempty"`
	Data       [][]*wireValue      `json:"data,omitempty"`
}

// MarshalValue encodes v.
func MarshalValue(v value.Value) ([]byte, error) {
	w, err := toWireValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalValue decodes a value encoded by MarshalValue.
func UnmarshalValue(data []byte) (value.Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return value.Null(), errors.Wrap(err, "decoding value")
	}
	return fromWireValue(&w)
}

func toWireValue(v value.Value) (*wireValue, error) {
	w := &wireValue{Type: v.Type.String()}
	var err error
	switch v.Type {
	case value.TypeNull:
	case value.TypeBoolean:
		w.Value, err = json.Marshal(v.Bool)
	case value.TypeNumber:
		if math.IsInf(v.Num, 0) || math.IsNaN(v.Num) {
			// JSON has no literal for these, so they travel as strings.
			w.Value, err = json.Marshal(strconv.FormatFloat(v.Num, 'g', -1, 64))
		} else {
			w.Value, err = json.Marshal(v.Num)
		}
	case value.TypeString:
		w.Value, err = json.Marshal(v.Str)
	case value.TypeTime:
		w.Value, err = json.Marshal(v.Time.Format(time.RFC3339Nano))
	case value.TypeTimeRange:
		w.Start = v.Range.Start.Format(time.RFC3339Nano)
		w.End = v.Range.End.Format(time.RFC3339Nano)
	case value.TypeSet:
		w.Elements = make([]*wireValue, len(v.Set))
		for i, e := range v.Set {
			if w.Elements[i], err = toWireValue(e); err != nil {
				return nil, err
			}
		}
	case value.TypeDataset:
		if v.Dataset == nil {
			return nil, errors.New("dataset value without dataset")
		}
		w.Attributes = append([]string{}, v.Dataset.Attributes...)
		w.Data = make([][]*wireValue, len(v.Dataset.Data))
		for i, row := range v.Dataset.Data {
			cells := make([]*wireValue, len(w.Attributes))
			for j, name := range w.Attributes {
				cell, ok := row.Get(name)
				if !ok {
					continue
				}
				if cells[j], err = toWireValue(cell); err != nil {
					return nil, err
				}
			}
			w.Data[i] = cells
		}
	default:
		return nil, errors.Errorf("cannot encode value of type %s", v.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", v.Type)
	}
	return w, nil
}

func fromWireValue(w *wireValue) (value.Value, error) {
	if w == nil {
		return value.Null(), nil
	}
	t, ok := value.ParseType(w.Type)
	if !ok {
		return value.Null(), errors.Errorf("unknown value type %q", w.Type)
	}

	switch t {
	case value.TypeNull:
		return value.Null(), nil
	case value.TypeBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return value.Null(), errors.Wrap(err, "decoding BOOLEAN")
		}
		return value.Bool(b), nil
	case value.TypeNumber:
		if len(w.Value) > 0 && w.Value[0] == '"' {
			var s string
			if err := json.Unmarshal(w.Value, &s); err != nil {
				return value.Null(), errors.Wrap(err, "decoding NUMBER")
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || !(math.IsInf(f, 0) || math.IsNaN(f)) {
				return value.Null(), errors.Errorf("decoding NUMBER: unexpected string %q", s)
			}
			return value.Number(f), nil
		}
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return value.Null(), errors.Wrap(err, "decoding NUMBER")
		}
		return value.Number(f), nil
	case value.TypeString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return value.Null(), errors.Wrap(err, "decoding STRING")
		}
		return value.String(s), nil
	case value.TypeTime:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return value.Null(), errors.Wrap(err, "decoding TIME")
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return value.Null(), errors.Wrap(err, "decoding TIME")
		}
		return value.Time(ts), nil
	case value.TypeTimeRange:
		start, err := time.Parse(time.RFC3339Nano, w.Start)
		if err != nil {
			return value.Null(), errors.Wrap(err, "decoding TIME_RANGE start")
		}
		end, err := time.Parse(time.RFC3339Nano, w.End)
		if err != nil {
			return value.Null(), errors.Wrap(err, "decoding TIME_RANGE end")
		}
		return value.Range(start, end), nil
	case value.TypeSet:
		elems := make([]value.Value, len(w.Elements))
		for i, e := range w.Elements {
			v, err := fromWireValue(e)
			if err != nil {
				return value.Null(), err
			}
			elems[i] = v
		}
		return value.NewSet(elems...), nil
	case value.TypeDataset:
		ds := value.NewDataset(append([]string{}, w.Attributes...))
		for i, cells := range w.Data {
			if len(cells) != len(w.Attributes) {
				return value.Null(), errors.Errorf("dataset row %d has %d cells, expected %d", i, len(cells), len(w.Attributes))
			}
			var attrs []value.Attribute
			for j, cell := range cells {
				if cell == nil {
					continue
				}
				v, err := fromWireValue(cell)
				if err != nil {
					return value.Null(), errors.Wrapf(err, "row %d, attribute %q", i, w.Attributes[j])
				}
				attrs = append(attrs, value.Attribute{Name: w.Attributes[j], Value: v})
			}
			ds.Add(value.NewDatum(attrs...))
		}
		return value.DatasetVal(ds), nil
	}
	return value.Null(), errors.Errorf("cannot decode value of type %s", t)
}

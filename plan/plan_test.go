package plan

import (
	"math"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/parser"
	"github.com/razeghi71/ply/value"
)

func TestExpressionRoundTrip(t *testing.T) {
	for _, in := range []string{
		"$data.filter($age > 20 and $city != 'LA').apply('Older', $age + 1).sort($age, 'descending').limit(3)",
		"$data.split({Country: $country, 'Two Words': $x}, 'rows').apply('Revenue', $rows.sum($revenue))",
		"$data.join($cities, $city, $name, 'inner').select('name', 'state')",
		"$data.join($cities, $city, $name)",
		"$name.like('%a|%', '|')",
		"$data.like('A%', $name)",
		"$name.match('^[A-Z]+$')",
		"$data.count()",
		"$data.countDistinct($city).divide($^total)",
		"$t.timeFloor('week').timePart('dayOfYear')",
		"$t.timeBucket('15m')",
		"$n.numberBucket(2.5, 1)",
		"$s.contains('x', 'ignoreCase').not()",
		"$s.substr(1, 2).upper().concat($u.lower()).length()",
		"$x.fallback(null).in([1, 'a', true])",
		"$t.in(timeRange('2024-01-01T00:00:00Z', '2024-02-01T00:00:00Z'))",
		"time('2024-01-02T03:04:05.5Z')",
		"${first name}",
	} {
		ex := parser.MustParse(in)
		b, err := MarshalExpression(ex)
		require.NoError(t, err, in)

		back, err := UnmarshalExpression(b)
		require.NoError(t, err, in)
		require.Equal(t, expr.String(ex), expr.String(back), in)
	}
}

func TestExpressionWireFormat(t *testing.T) {
	b, err := MarshalExpression(parser.MustParse("$^x.add(1)"))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"op": "chain",
		"operand": {"op": "ref", "name": "x", "nesting": 1},
		"actions": [{"action": "add", "expression": {"op": "literal", "value": {"type": "NUMBER", "value": 1}}}]
	}`, string(b))
}

func TestUnmarshalExpressionErrors(t *testing.T) {
	for _, in := range []string{
		`nope`,
		`{"op": "call"}`,
		`{"op": "ref"}`,
		`{"op": "ref", "name": "x", "nesting": -1}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "explode"}]}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "sum"}]}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "split"}]}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "join", "kind": "outer"}]}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "timeFloor", "period": "eon"}]}`,
		`{"op": "chain", "operand": {"op": "ref", "name": "x"}, "actions": [{"action": "like", "pattern": "a", "escape": "ab"}]}`,
		`{"op": "literal", "value": {"type": "COLOUR"}}`,
	} {
		_, err := UnmarshalExpression([]byte(in))
		require.Error(t, err, in)
	}
}

func TestValueRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	ds := value.NewDataset([]string{"name", "age", "tags"})
	ds.Add(value.NewDatum(
		value.Attribute{Name: "name", Value: value.String("Alice")},
		value.Attribute{Name: "age", Value: value.Number(30)},
		value.Attribute{Name: "tags", Value: value.NewSet(value.String("a"), value.String("b"))},
	))
	ds.Add(value.NewDatum(
		value.Attribute{Name: "name", Value: value.String("Bob")},
		value.Attribute{Name: "age", Value: value.Null()},
	))

	for _, v := range []value.Value{
		value.Null(),
		value.Bool(true),
		value.Number(-1.25),
		value.String("it's \"quoted\""),
		value.Time(ts),
		value.Range(ts, ts.Add(time.Hour)),
		value.NewSet(value.Number(1), value.String("1"), value.Null()),
		value.NewSet(),
		value.DatasetVal(ds),
	} {
		b, err := MarshalValue(v)
		require.NoError(t, err, v.String())
		back, err := UnmarshalValue(b)
		require.NoError(t, err, string(b))
		require.True(t, value.Equal(v, back), "%s != %s", v, back)
	}
}

func TestNonFiniteNumbers(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1)} {
		b, err := MarshalValue(value.Number(f))
		require.NoError(t, err)
		back, err := UnmarshalValue(b)
		require.NoError(t, err, string(b))
		require.Equal(t, f, back.Num)
	}

	b, err := MarshalValue(value.Number(math.NaN()))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"NUMBER","value":"NaN"}`, string(b))
	back, err := UnmarshalValue(b)
	require.NoError(t, err)
	require.Equal(t, value.TypeNumber, back.Type)
	require.True(t, math.IsNaN(back.Num))

	_, err = UnmarshalValue([]byte(`{"type":"NUMBER","value":"12"}`))
	require.Error(t, err)
}

func TestDatasetKeepsMissingAttributes(t *testing.T) {
	ds := value.NewDataset([]string{"a", "b"})
	ds.Add(value.NewDatum(value.Attribute{Name: "a", Value: value.Number(1)}))

	b, err := MarshalValue(value.DatasetVal(ds))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"DATASET","attributes":["a","b"],"data":[[{"type":"NUMBER","value":1},null]]}`, string(b))

	back, err := UnmarshalValue(b)
	require.NoError(t, err)
	row := back.Dataset.Data[0]
	_, ok := row.Get("b")
	require.False(t, ok)
	require.Equal(t, []string{"a", "b"}, back.Dataset.Attributes)
}

func TestAdapter(t *testing.T) {
	var a Adapter
	for _, raw := range []any{
		jsoniter.RawMessage(`{"type":"NUMBER","value":2}`),
		[]byte(`{"type":"NUMBER","value":2}`),
		`{"type":"NUMBER","value":2}`,
		value.Number(2),
	} {
		v, err := a.Adapt(raw)
		require.NoError(t, err)
		require.True(t, value.Equal(value.Number(2), v))
	}

	_, err := a.Adapt(nil)
	require.Error(t, err)
	_, err = a.Adapt(42)
	require.Error(t, err)
}

func TestTranslator(t *testing.T) {
	q, err := Translator{}.Translate(parser.MustParse("$data.count()"))
	require.NoError(t, err)
	back, err := UnmarshalExpression(q.(jsoniter.RawMessage))
	require.NoError(t, err)
	require.Equal(t, "$data.count()", expr.String(back))
}

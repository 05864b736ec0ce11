package expr

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/razeghi71/ply/value"
)

func TestNewChainFlattens(t *testing.T) {
	inner := NewChain(Ref("data"), &FilterAction{Expression: Lit(value.Bool(true))})
	outer := NewChain(inner, &LimitAction{N: 3}, &AggregateAction{Op: Count})

	c, ok := outer.(*Chain)
	if !ok {
		t.Fatalf("expected Chain, got %T", outer)
	}
	if _, ok := c.Operand.(*Reference); !ok {
		t.Errorf("expected the reference as operand, got %T", c.Operand)
	}
	if len(c.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(c.Actions))
	}
	if len(inner.(*Chain).Actions) != 1 {
		t.Errorf("flattening modified the inner chain")
	}
}

func TestNewChainWithoutActions(t *testing.T) {
	ref := Ref("x")
	if NewChain(ref) != Expression(ref) {
		t.Error("a chain without actions should be its operand")
	}
}

func TestFreeReferences(t *testing.T) {
	// $data.filter($age > $^min).apply('n', $name).join($cities, $city, $name)
	ex := NewChain(Ref("data"),
		&FilterAction{Expression: NewChain(Ref("age"), &CompareAction{Op: GreaterThan, Expression: OuterRef("min", 1)})},
		&ApplyAction{Attr: "n", Expression: Ref("name")},
		&JoinAction{Other: Ref("cities"), LeftKey: Ref("city"), RightKey: Ref("name")},
		&ArithmeticAction{Op: Add, Expression: NewChain(Ref("other"), &AggregateAction{Op: Sum, Expression: OuterRef("total", 1)})},
	)
	want := []string{"data", "min", "cities", "other", "total"}
	if diff := cmp.Diff(want, FreeReferences(ex)); diff != "" {
		t.Errorf("free references mismatch (-want +got):\n%s", diff)
	}
}

func TestMapOuterArgs(t *testing.T) {
	join := &JoinAction{Other: Ref("cities"), LeftKey: Ref("city"), RightKey: Ref("name")}
	mapped := MapOuterArgs(join, func(Expression) Expression { return Lit(value.Null()) }).(*JoinAction)
	if _, ok := mapped.Other.(*Literal); !ok {
		t.Errorf("expected Other to be replaced, got %T", mapped.Other)
	}
	if _, ok := mapped.LeftKey.(*Reference); !ok {
		t.Errorf("row arguments must be kept")
	}
	if _, ok := join.Other.(*Reference); !ok {
		t.Errorf("the original action was modified")
	}

	filter := &FilterAction{Expression: Ref("x")}
	if MapOuterArgs(filter, func(Expression) Expression { return nil }) != Action(filter) {
		t.Error("actions without outer arguments should be returned unchanged")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		ex   Expression
		want string
	}{
		{Lit(value.Number(1.5)), "1.5"},
		{Lit(value.String("it's")), `'it\'s'`},
		{OuterRef("first name", 2), "$^^{first name}"},
		{NewChain(Ref("s"), &MatchAction{Pattern: "a%", Syntax: SyntaxLike, Escape: '\\'}), "$s.like('a%')"},
		{NewChain(Ref("s"), &MatchAction{Pattern: "a%", Syntax: SyntaxLike, Escape: '!'}), "$s.like('a%', '!')"},
		{NewChain(Ref("d"), &SplitAction{Splits: []SplitKey{{Name: "Two Words", Expression: Ref("x")}}, DataName: "data"}),
			"$d.split({'Two Words': $x}, 'data')"},
		{NewChain(Ref("d"), &SortAction{Expression: Ref("x"), Direction: Ascending}), "$d.sort($x)"},
		{Lit(value.NewSet(value.Number(1), value.String("a"))), "[1, 'a']"},
	}
	for _, tt := range tests {
		if got := String(tt.ex); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"day", "week", "15m", "1h30m"} {
		if _, err := ParsePeriod(s); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	for _, s := range []string{"", "fortnight", "-1h", "0s"} {
		if _, err := ParsePeriod(s); err == nil {
			t.Errorf("%q: expected an error", s)
		}
	}
}

func TestPeriodFloorAndShift(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 3, 14, 2, 47, 10, 0, time.UTC) // 21:47 on the 13th in loc

	tests := []struct {
		period string
		floor  time.Time
		next   time.Time
	}{
		{"day", time.Date(2024, 3, 13, 0, 0, 0, 0, loc), time.Date(2024, 3, 14, 0, 0, 0, 0, loc)},
		{"week", time.Date(2024, 3, 11, 0, 0, 0, 0, loc), time.Date(2024, 3, 18, 0, 0, 0, 0, loc)},
		{"month", time.Date(2024, 3, 1, 0, 0, 0, 0, loc), time.Date(2024, 4, 1, 0, 0, 0, 0, loc)},
		{"15m", time.Date(2024, 3, 13, 21, 45, 0, 0, loc), time.Date(2024, 3, 13, 22, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		p := MustPeriod(tt.period)
		floor := p.Floor(ts, loc)
		if !floor.Equal(tt.floor) {
			t.Errorf("%s: expected floor %s, got %s", tt.period, tt.floor, floor)
		}
		if next := p.Shift(floor, loc); !next.Equal(tt.next) {
			t.Errorf("%s: expected shift %s, got %s", tt.period, tt.next, next)
		}
	}
}

func TestSchemaOfDataset(t *testing.T) {
	ds := value.NewDataset([]string{"name", "age", "mixed", "empty"})
	ds.Add(value.NewDatum(
		value.Attribute{Name: "name", Value: value.String("a")},
		value.Attribute{Name: "age", Value: value.Null()},
		value.Attribute{Name: "mixed", Value: value.Number(1)},
		value.Attribute{Name: "empty", Value: value.Null()},
	))
	ds.Add(value.NewDatum(
		value.Attribute{Name: "name", Value: value.String("b")},
		value.Attribute{Name: "age", Value: value.Number(3)},
		value.Attribute{Name: "mixed", Value: value.String("x")},
		value.Attribute{Name: "empty", Value: value.Null()},
	))

	s := SchemaOfDataset(ds)
	if got := s.String(); got != "{name:STRING, age:NUMBER, mixed:NULL, empty:NULL}" {
		t.Errorf("unexpected schema %s", got)
	}
}

func TestBind(t *testing.T) {
	// $data.filter($age > $^min).apply('m', $min).add($min)
	ex := NewChain(Ref("data"),
		&FilterAction{Expression: NewChain(Ref("age"), &CompareAction{Op: GreaterThan, Expression: OuterRef("min", 1)})},
		&ApplyAction{Attr: "m", Expression: Ref("min")},
		&ArithmeticAction{Op: Add, Expression: Ref("min")},
	)
	datum := value.NewDatum(value.Attribute{Name: "min", Value: value.Number(18)})

	got := String(Bind(ex, datum))
	want := "$data.filter($age.greaterThan(18)).apply('m', $min).add(18)"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if String(ex) == got {
		t.Error("Bind modified its input")
	}
}

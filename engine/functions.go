package engine

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// --- Aggregates ---

func (ev *evaluator) aggregate(d *value.Dataset, a *expr.AggregateAction, s *scope) (value.Value, error) {
	if a.Op == expr.Count && a.Expression == nil {
		return value.Number(float64(d.Len())), nil
	}
	if a.Expression == nil {
		return value.Null(), invalid(string(a.Op), "expression is required")
	}
	vals, err := ev.rowValues(d, a.Expression, s)
	if err != nil {
		return value.Null(), err
	}

	switch a.Op {
	case expr.Count:
		n := 0
		for _, v := range vals {
			if !v.IsNull() {
				n++
			}
		}
		return value.Number(float64(n)), nil
	case expr.Sum:
		sum, _, err := sumValues(vals)
		if err != nil {
			return value.Null(), err
		}
		return value.Number(sum), nil
	case expr.Average:
		sum, n, err := sumValues(vals)
		if err != nil {
			return value.Null(), errors.Wrap(err, "average")
		}
		if n == 0 {
			return value.Null(), nil
		}
		return value.Number(sum / float64(n)), nil
	case expr.Min:
		return ev.extreme(string(a.Op), vals, -1)
	case expr.Max:
		return ev.extreme(string(a.Op), vals, 1)
	case expr.CountDistinct:
		seen := make(map[string]bool)
		for _, v := range vals {
			if !v.IsNull() {
				seen[value.Key(v)] = true
			}
		}
		return value.Number(float64(len(seen))), nil
	default:
		return value.Null(), invalid(string(a.Op), "unknown aggregate")
	}
}

// sumValues adds the non-null numbers of vals and reports how many there
// were.
func sumValues(vals []value.Value) (float64, int, error) {
	var sum float64
	n := 0
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return 0, 0, mismatch("sum", "NUMBER", v.Type)
		}
		sum += f
		n++
	}
	return sum, n, nil
}

// extreme returns the smallest (sign -1) or largest (sign 1) non-null value.
func (ev *evaluator) extreme(action string, vals []value.Value, sign int) (value.Value, error) {
	best := value.Null()
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		switch v.Type {
		case value.TypeNumber, value.TypeTime, value.TypeString:
		default:
			return value.Null(), mismatch(action, "NUMBER, TIME or STRING", v.Type)
		}
		if best.IsNull() {
			best = v
			continue
		}
		cmp, err := value.CompareWith(v, best, ev.strCmp)
		if err != nil {
			return value.Null(), compareError(action, err)
		}
		if cmp*sign > 0 {
			best = v
		}
	}
	return best, nil
}

// --- Time ---

var dateFormats = []string{
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// toTime reads a time value. Strings are parsed with the known date formats
// in the environment's timezone. ok is false for null.
func (ev *evaluator) toTime(action string, v value.Value) (t time.Time, ok bool, err error) {
	switch v.Type {
	case value.TypeNull:
		return time.Time{}, false, nil
	case value.TypeTime:
		return v.Time, true, nil
	case value.TypeString:
		for _, layout := range dateFormats {
			if t, err = time.ParseInLocation(layout, v.Str, ev.loc); err == nil {
				return t, true, nil
			}
		}
		return time.Time{}, false, &TypeMismatchError{Action: action, Expected: "TIME", Actual: fmt.Sprintf("unparseable STRING %q", v.Str)}
	default:
		return time.Time{}, false, mismatch(action, "TIME", v.Type)
	}
}

func (ev *evaluator) timeFloor(a *expr.TimeFloorAction, in value.Value) (value.Value, error) {
	t, ok, err := ev.toTime(a.Name(), in)
	if err != nil || !ok {
		return value.Null(), err
	}
	return value.Time(a.Period.Floor(t, ev.loc)), nil
}

func (ev *evaluator) timeBucket(a *expr.TimeBucketAction, in value.Value) (value.Value, error) {
	t, ok, err := ev.toTime(a.Name(), in)
	if err != nil || !ok {
		return value.Null(), err
	}
	start := a.Period.Floor(t, ev.loc)
	return value.Range(start, a.Period.Shift(start, ev.loc)), nil
}

func (ev *evaluator) timePart(a *expr.TimePartAction, in value.Value) (value.Value, error) {
	t, ok, err := ev.toTime(a.Name(), in)
	if err != nil || !ok {
		return value.Null(), err
	}
	t = t.In(ev.loc)

	var n int
	switch a.Part {
	case "year":
		n = t.Year()
	case "month":
		n = int(t.Month())
	case "day":
		n = t.Day()
	case "hour":
		n = t.Hour()
	case "minute":
		n = t.Minute()
	case "second":
		n = t.Second()
	case "dayOfWeek":
		// Monday is 1, Sunday is 7.
		n = (int(t.Weekday())+6)%7 + 1
	case "dayOfYear":
		n = t.YearDay()
	default:
		return value.Null(), invalid("timePart", "unknown part %q", a.Part)
	}
	return value.Number(float64(n)), nil
}

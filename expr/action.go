package expr

// Action is a single step of a chain. The set of actions is closed: every
// action type is declared in this file and the engine handles each one.
type Action interface {
	// Name is the action's name in the textual syntax and in plans.
	Name() string
	actionNode()
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// JoinKind selects how unmatched left rows are handled.
type JoinKind string

const (
	LeftJoin  JoinKind = "left"
	InnerJoin JoinKind = "inner"
)

// Syntax selects how a match pattern is read.
type Syntax string

const (
	SyntaxRegexp Syntax = "regexp"
	SyntaxLike   Syntax = "like"
)

// --- Dataset actions ---

// FilterAction keeps rows for which Expression is true.
type FilterAction struct {
	Expression Expression
}

func (a *FilterAction) Name() string { return "filter" }
func (a *FilterAction) actionNode()  {}

// ApplyAction sets attribute Attr on every row to Expression.
type ApplyAction struct {
	Attr       string
	Expression Expression
}

func (a *ApplyAction) Name() string { return "apply" }
func (a *ApplyAction) actionNode()  {}

// SortAction orders rows by Expression.
type SortAction struct {
	Expression Expression
	Direction  Direction
}

func (a *SortAction) Name() string { return "sort" }
func (a *SortAction) actionNode()  {}

// LimitAction keeps the first N rows.
type LimitAction struct {
	N int
}

func (a *LimitAction) Name() string { return "limit" }
func (a *LimitAction) actionNode()  {}

// SplitKey is one component of a split's composite key.
type SplitKey struct {
	Name       string
	Expression Expression
}

// SplitAction groups rows by the composite key made of Splits. Each output
// row holds the key components and, under DataName, the group's rows.
type SplitAction struct {
	Splits   []SplitKey
	DataName string
}

func (a *SplitAction) Name() string { return "split" }
func (a *SplitAction) actionNode()  {}

// JoinAction combines rows with the rows of Other whose RightKey equals the
// row's LeftKey.
type JoinAction struct {
	Other    Expression
	LeftKey  Expression
	RightKey Expression
	Kind     JoinKind
}

func (a *JoinAction) Name() string { return "join" }
func (a *JoinAction) actionNode()  {}

// SelectAction keeps only the listed attributes.
type SelectAction struct {
	Attributes []string
}

func (a *SelectAction) Name() string { return "select" }
func (a *SelectAction) actionNode()  {}

// MatchAction tests a string against Pattern. Applied to a dataset it keeps
// the rows whose Expression matches.
type MatchAction struct {
	Pattern    string
	Syntax     Syntax
	Escape     rune
	Expression Expression
}

func (a *MatchAction) Name() string {
	if a.Syntax == SyntaxLike {
		return "like"
	}
	return "match"
}
func (a *MatchAction) actionNode() {}

// AggregateOp names an aggregate.
type AggregateOp string

const (
	Count         AggregateOp = "count"
	Sum           AggregateOp = "sum"
	Min           AggregateOp = "min"
	Max           AggregateOp = "max"
	Average       AggregateOp = "average"
	CountDistinct AggregateOp = "countDistinct"
)

// AggregateAction reduces a dataset to one value. Expression is computed per
// row and is unused by count.
type AggregateAction struct {
	Op         AggregateOp
	Expression Expression
}

func (a *AggregateAction) Name() string { return string(a.Op) }
func (a *AggregateAction) actionNode()  {}

// --- Scalar actions ---

// ArithmeticOp names an arithmetic operator.
type ArithmeticOp string

const (
	Add      ArithmeticOp = "add"
	Subtract ArithmeticOp = "subtract"
	Multiply ArithmeticOp = "multiply"
	Divide   ArithmeticOp = "divide"
)

// ArithmeticAction combines the input number with Expression.
type ArithmeticAction struct {
	Op         ArithmeticOp
	Expression Expression
}

func (a *ArithmeticAction) Name() string { return string(a.Op) }
func (a *ArithmeticAction) actionNode()  {}

// CompareOp names a comparison.
type CompareOp string

const (
	Is                 CompareOp = "is"
	IsNot              CompareOp = "isNot"
	LessThan           CompareOp = "lessThan"
	LessThanOrEqual    CompareOp = "lessThanOrEqual"
	GreaterThan        CompareOp = "greaterThan"
	GreaterThanOrEqual CompareOp = "greaterThanOrEqual"
)

// CompareAction compares the input with Expression.
type CompareAction struct {
	Op         CompareOp
	Expression Expression
}

func (a *CompareAction) Name() string { return string(a.Op) }
func (a *CompareAction) actionNode()  {}

// LogicalOp names a boolean connective.
type LogicalOp string

const (
	And LogicalOp = "and"
	Or  LogicalOp = "or"
)

// LogicalAction combines the input boolean with Expression.
type LogicalAction struct {
	Op         LogicalOp
	Expression Expression
}

func (a *LogicalAction) Name() string { return string(a.Op) }
func (a *LogicalAction) actionNode()  {}

// NotAction negates a boolean.
type NotAction struct{}

func (a *NotAction) Name() string { return "not" }
func (a *NotAction) actionNode()  {}

// InAction tests membership of the input in a set or time range.
type InAction struct {
	Expression Expression
}

func (a *InAction) Name() string { return "in" }
func (a *InAction) actionNode()  {}

// ContainsAction tests whether the input string or set contains Expression.
type ContainsAction struct {
	Expression Expression
	IgnoreCase bool
}

func (a *ContainsAction) Name() string { return "contains" }
func (a *ContainsAction) actionNode()  {}

// ConcatAction appends Expression to the input string.
type ConcatAction struct {
	Expression Expression
}

func (a *ConcatAction) Name() string { return "concat" }
func (a *ConcatAction) actionNode()  {}

// FallbackAction replaces a null input with Expression.
type FallbackAction struct {
	Expression Expression
}

func (a *FallbackAction) Name() string { return "fallback" }
func (a *FallbackAction) actionNode()  {}

// TransformCaseAction changes the case of a string.
type TransformCaseAction struct {
	Upper bool
}

func (a *TransformCaseAction) Name() string {
	if a.Upper {
		return "upper"
	}
	return "lower"
}
func (a *TransformCaseAction) actionNode() {}

// LengthAction returns the length of a string, set or dataset.
type LengthAction struct{}

func (a *LengthAction) Name() string { return "length" }
func (a *LengthAction) actionNode()  {}

// SubstrAction extracts Length characters starting at Position.
type SubstrAction struct {
	Position int
	Length   int
}

func (a *SubstrAction) Name() string { return "substr" }
func (a *SubstrAction) actionNode()  {}

// TimeFloorAction rounds a time down to Period in the environment's
// timezone.
type TimeFloorAction struct {
	Period Period
}

func (a *TimeFloorAction) Name() string { return "timeFloor" }
func (a *TimeFloorAction) actionNode()  {}

// TimeBucketAction maps a time to the range of the Period it falls in.
type TimeBucketAction struct {
	Period Period
}

func (a *TimeBucketAction) Name() string { return "timeBucket" }
func (a *TimeBucketAction) actionNode()  {}

// TimePartAction extracts a calendar component from a time.
type TimePartAction struct {
	Part string
}

func (a *TimePartAction) Name() string { return "timePart" }
func (a *TimePartAction) actionNode()  {}

// TimeParts lists the parts accepted by TimePartAction.
var TimeParts = []string{"year", "month", "day", "hour", "minute", "second", "dayOfWeek", "dayOfYear"}

// NumberBucketAction maps a number to the start of its bucket.
type NumberBucketAction struct {
	Size   float64
	Offset float64
}

func (a *NumberBucketAction) Name() string { return "numberBucket" }
func (a *NumberBucketAction) actionNode()  {}

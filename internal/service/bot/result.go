package bot

// Outcome 尽力而为操作的结果分类
type Outcome int

const (
	Produced Outcome = iota // 得到了值
	Absent                  // 没有值，可以继续
	Fatal                   // 必须中止当前更新
)

func (o Outcome) String() string {
	switch o {
	case Produced:
		return "produced"
	case Absent:
		return "absent"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

func Found[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: Produced}
}

func Missing[T any](err error) Result[T] {
	return Result[T]{Outcome: Absent, Err: err}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Outcome: Fatal, Err: err}
}

package valueobject

import (
	"errors"
	"strings"
)

// Operator представляет оператор сравнения порогового правила (Value Object)
type Operator string

const (
	GreaterThan    Operator = ">"
	LessThan       Operator = "<"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
	Equal          Operator = "=="
	NotEqual       Operator = "!="
)

var ErrInvalidOperator = errors.New("invalid comparison operator")

func ParseOperator(raw string) (Operator, error) {
	op := Operator(strings.TrimSpace(raw))
	if err := op.Validate(); err != nil {
		return "", err
	}
	return op, nil
}

func (o Operator) Validate() error {
	switch o {
	case GreaterThan, LessThan, GreaterOrEqual, LessOrEqual, Equal, NotEqual:
		return nil
	default:
		return ErrInvalidOperator
	}
}

// Compare возвращает true, если value нарушает порог threshold
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case GreaterThan:
		return value > threshold
	case LessThan:
		return value < threshold
	case GreaterOrEqual:
		return value >= threshold
	case LessOrEqual:
		return value <= threshold
	case Equal:
		return value == threshold
	case NotEqual:
		return value != threshold
	default:
		return false
	}
}

func (o Operator) String() string {
	return string(o)
}

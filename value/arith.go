package value

import "github.com/calderadb/caldera/common"

// Add implements the + operator. Two numeric operands promote to Float if
// either is a Float; two strings concatenate; two booleans is not defined by
// addition and falls through to the type-mismatch error, same as any other
// cross-kind pairing.
func (v Value) Add(other Value) (Value, error) {
	switch {
	case v.kind == KindInteger && other.kind == KindInteger:
		return Integer(v.i + other.i), nil
	case v.kind == KindFloat && other.kind == KindFloat:
		return Float(v.f + other.f), nil
	case v.kind == KindInteger && other.kind == KindFloat:
		return Float(float64(v.i) + other.f), nil
	case v.kind == KindFloat && other.kind == KindInteger:
		return Float(v.f + float64(other.i)), nil
	case v.kind == KindString && other.kind == KindString:
		return String(v.s + other.s), nil
	default:
		return Value{}, mismatchErr("+", v, other)
	}
}

// Sub implements the - operator. Numeric operands use the same int/float
// promotion as Add. Booleans subtract as logical OR, matching the spec's
// bitwise-flavored treatment of boolean arithmetic.
func (v Value) Sub(other Value) (Value, error) {
	switch {
	case v.kind == KindInteger && other.kind == KindInteger:
		return Integer(v.i - other.i), nil
	case v.kind == KindFloat && other.kind == KindFloat:
		return Float(v.f - other.f), nil
	case v.kind == KindInteger && other.kind == KindFloat:
		return Float(float64(v.i) - other.f), nil
	case v.kind == KindFloat && other.kind == KindInteger:
		return Float(v.f - float64(other.i)), nil
	case v.kind == KindBoolean && other.kind == KindBoolean:
		return Boolean(v.b || other.b), nil
	default:
		return Value{}, mismatchErr("-", v, other)
	}
}

// Mul implements the * operator with the same numeric promotion rules.
// Booleans multiply as logical AND.
func (v Value) Mul(other Value) (Value, error) {
	switch {
	case v.kind == KindInteger && other.kind == KindInteger:
		return Integer(v.i * other.i), nil
	case v.kind == KindFloat && other.kind == KindFloat:
		return Float(v.f * other.f), nil
	case v.kind == KindInteger && other.kind == KindFloat:
		return Float(float64(v.i) * other.f), nil
	case v.kind == KindFloat && other.kind == KindInteger:
		return Float(v.f * float64(other.i)), nil
	case v.kind == KindBoolean && other.kind == KindBoolean:
		return Boolean(v.b && other.b), nil
	default:
		return Value{}, mismatchErr("*", v, other)
	}
}

// Div implements the / operator. Integer division truncates toward zero,
// matching Go's native int division. Division by a zero integer is
// ErrDivByZero rather than a panic; division by a zero float follows IEEE
// 754 and produces +Inf/-Inf/NaN like the rest of the numeric tower.
func (v Value) Div(other Value) (Value, error) {
	switch {
	case v.kind == KindInteger && other.kind == KindInteger:
		if other.i == 0 {
			return Value{}, common.ErrDivByZero
		}
		return Integer(v.i / other.i), nil
	case v.kind == KindFloat && other.kind == KindFloat:
		return Float(v.f / other.f), nil
	case v.kind == KindInteger && other.kind == KindFloat:
		return Float(float64(v.i) / other.f), nil
	case v.kind == KindFloat && other.kind == KindInteger:
		return Float(v.f / float64(other.i)), nil
	default:
		return Value{}, mismatchErr("/", v, other)
	}
}

// Mod implements the % operator, supplementing the core arithmetic set with
// integer remainder. It is defined only for integer/integer, matching the
// evaluator's operator set without extending the rest of the numeric tower.
func (v Value) Mod(other Value) (Value, error) {
	if v.kind == KindInteger && other.kind == KindInteger {
		if other.i == 0 {
			return Value{}, common.ErrDivByZero
		}
		return Integer(v.i % other.i), nil
	}
	return Value{}, mismatchErr("%", v, other)
}

// Eq reports whether v and other are equal, as a Boolean value. Unlike the
// other operators, Eq never errors: values of differing kinds simply
// compare unequal.
func (v Value) Eq(other Value) Value {
	if v.kind != other.kind {
		return Boolean(false)
	}
	switch v.kind {
	case KindNull:
		return Boolean(true)
	case KindInteger:
		return Boolean(v.i == other.i)
	case KindFloat:
		return Boolean(v.f == other.f)
	case KindString:
		return Boolean(v.s == other.s)
	case KindBoolean:
		return Boolean(v.b == other.b)
	default:
		return Boolean(false)
	}
}

func mismatchErr(op string, a, b Value) error {
	return &common.ErrInvalidOperation{
		Msg: "type mismatch for " + op + ": " + a.ToString() + " and " + b.ToString(),
	}
}

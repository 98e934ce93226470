package batch

import (
	"fmt"
	"strconv"

	"github.com/spf13/afero"
)

// Test evaluates a condition:
//
//	! EXPR
//	-e FILE | -f FILE | -d FILE
//	-z S | -n S
//	S1 = S2 | S1 != S2
//	N1 -eq|-ne|-lt|-le|-gt|-ge N2
//	S                 (true when non-empty)
//
// A numeric comparison with a non-numeric operand is false with
// ErrTestSyntax.
func Test(fs afero.Fs, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	if args[0] == "!" {
		v, err := Test(fs, args[1:])
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	switch len(args) {
	case 1:
		return args[0] != "", nil
	case 2:
		return unary(fs, args[0], args[1])
	case 3:
		return binary(args[0], args[1], args[2])
	}
	return false, fmt.Errorf("%w: too many arguments", ErrTestSyntax)
}

func unary(fs afero.Fs, op, arg string) (bool, error) {
	switch op {
	case "-e":
		ok, err := afero.Exists(fs, arg)
		return ok && err == nil, nil
	case "-f":
		st, err := fs.Stat(arg)
		return err == nil && st.Mode().IsRegular(), nil
	case "-d":
		st, err := fs.Stat(arg)
		return err == nil && st.IsDir(), nil
	case "-z":
		return arg == "", nil
	case "-n":
		return arg != "", nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrTestSyntax, op)
}

func binary(a, op, b string) (bool, error) {
	switch op {
	case "=", "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	}
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	switch op {
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		if errA != nil || errB != nil {
			return false, fmt.Errorf("%w: %q %s %q is not numeric", ErrTestSyntax, a, op, b)
		}
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrTestSyntax, op)
	}
	switch op {
	case "-eq":
		return x == y, nil
	case "-ne":
		return x != y, nil
	case "-lt":
		return x < y, nil
	case "-le":
		return x <= y, nil
	case "-gt":
		return x > y, nil
	default:
		return x >= y, nil
	}
}

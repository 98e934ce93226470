package command

import "strconv"

// Exit is the result of a command.
type Exit int

// Exit values.
const (
	Success    Exit = 0
	Failure    Exit = 1
	NotHandled Exit = -1
)

// String returns the numeric form stored in the ? variable.
func (e Exit) String() string {
	if e == NotHandled {
		return "not-handled"
	}
	return strconv.Itoa(int(e))
}

// ExitOf maps a boolean outcome to Success or Failure.
func ExitOf(ok bool) Exit {
	if ok {
		return Success
	}
	return Failure
}

package waybind

import "fmt"

// Task is the outcome of a successful dispatch. It tells the owning
// connection what to do with the object after the method returned.
type Task int

const (
	// Continue keeps the object registered.
	Continue Task = iota
	// Destroy removes the object from the registry and releases its id.
	Destroy
	// Terminate tears down the whole connection.
	Terminate
)

// String implements fmt.Stringer.
func (t Task) String() string {
	switch t {
	case Continue:
		return "continue"
	case Destroy:
		return "destroy"
	case Terminate:
		return "terminate"
	default:
		return fmt.Sprintf("Task(%d)", int(t))
	}
}

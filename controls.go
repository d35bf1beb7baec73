package unstamp

import (
	"cmp"
	"fmt"
	"slices"
)

// Control represents an editable parameter of a filter.
// When Value is modified via OnChange, the filter updates its output immediately.
type Control interface {
	// Display/human readable name and description.
	Describe() (name, description string)
	// ActualValue returns the current value of the control.
	ActualValue() any
	// ChangeValue attempts to update the ActualValue to newValue.
	// A rejected value leaves the control and its filter unchanged.
	ChangeValue(newValue any) error
}

// FindControl returns the control named name or nil if absent.
func FindControl(ctrls []Control, name string) Control {
	for _, c := range ctrls {
		if n, _ := c.Describe(); n == name {
			return c
		}
	}
	return nil
}

type ControlOrdered[T cmp.Ordered] struct {
	Name        string
	Description string
	Value       T
	Min         T
	Max         T
	Step        T
	OnChange    func(T) error
}

func (co *ControlOrdered[T]) Describe() (name, description string) {
	return co.Name, co.Description
}
func (co *ControlOrdered[T]) ActualValue() any { return co.Value }
func (co *ControlOrdered[T]) ChangeValue(newValue any) error {
	v, ok := newValue.(T)
	if !ok {
		return invalidf("new value %T not of type %T", newValue, co.Value)
	}
	if v < co.Min || v > co.Max {
		return invalidf("new value %v exceeds limits %v..%v", v, co.Min, co.Max)
	}
	if co.OnChange != nil {
		if err := co.OnChange(v); err != nil {
			return err
		}
	}
	co.Value = v
	return nil
}

type integer interface {
	~int | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// enum best generated with stringer commands.
type enum interface {
	integer
	fmt.Stringer
}

// ControlEnum maps to dropdown kind of list.
type ControlEnum[T enum] struct {
	Name        string
	Description string
	Value       T
	ValidValues []T
	OnChange    func(T) error
}

func (ce *ControlEnum[T]) Describe() (name, description string) {
	return ce.Name, ce.Description
}
func (ce *ControlEnum[T]) ActualValue() any {
	return ce.Value
}
func (ce *ControlEnum[T]) ChangeValue(newValue any) error {
	v, ok := newValue.(T)
	if !ok {
		return invalidf("new value %T not of type %T", newValue, ce.Value)
	}
	if !slices.Contains(ce.ValidValues, v) {
		return invalidf("value %v of %T not valid", v, v)
	}
	if ce.OnChange != nil {
		if err := ce.OnChange(v); err != nil {
			return err
		}
	}
	ce.Value = v
	return nil
}

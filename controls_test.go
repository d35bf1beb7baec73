package unstamp

import (
	"errors"
	"testing"
)

type testMode uint8

func (m testMode) String() string { return [...]string{"zero", "one", "two"}[m] }

func TestControlEnum(t *testing.T) {
	var got testMode
	ce := &ControlEnum[testMode]{
		Name:        "Mode",
		Value:       0,
		ValidValues: []testMode{0, 1},
		OnChange:    func(m testMode) error { got = m; return nil },
	}
	if err := ce.ChangeValue(testMode(1)); err != nil {
		t.Fatal(err)
	}
	if got != 1 || ce.ActualValue() != testMode(1) {
		t.Errorf("value not applied: got=%v actual=%v", got, ce.ActualValue())
	}
	if err := ce.ChangeValue(testMode(2)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got %v", err)
	}
	if err := ce.ChangeValue(1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("wrong type: want ErrInvalidArgument, got %v", err)
	}
}

func TestControlOrderedRejectsOnChangeError(t *testing.T) {
	veto := errors.New("veto")
	co := &ControlOrdered[int]{Name: "n", Value: 3, Min: 0, Max: 10, OnChange: func(int) error { return veto }}
	if err := co.ChangeValue(5); err != veto {
		t.Errorf("want veto, got %v", err)
	}
	if co.Value != 3 {
		t.Errorf("value changed after veto: %d", co.Value)
	}
	if err := co.ChangeValue(11); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("out of range: want ErrInvalidArgument, got %v", err)
	}
}

func TestFindControl(t *testing.T) {
	mode := &ControlEnum[testMode]{Name: "Mode", ValidValues: []testMode{0, 1}}
	ctrls := []Control{&ControlOrdered[int]{Name: "a"}, mode}
	if FindControl(ctrls, "Mode") != mode {
		t.Error("FindControl did not return enum control")
	}
	if FindControl(ctrls, "missing") != nil {
		t.Error("FindControl returned control for unknown name")
	}
	if FindControl(nil, "Mode") != nil {
		t.Error("FindControl on nil slice returned control")
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:        "unknown",
		KindDataValidation: "data_validation",
		KindConfiguration:  "configuration",
		KindTraining:       "training",
		KindPrediction:     "prediction",
		KindPersistence:    "persistence",
	}

	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestNewf(t *testing.T) {
	err := Newf(KindTraining, "series spans %d days", 10)

	if err.Kind != KindTraining {
		t.Errorf("Kind = %v, want KindTraining", err.Kind)
	}
	if err.Error() != "training: series spans 10 days" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapfUnwrap(t *testing.T) {
	cause := fmt.Errorf("matrix is singular")
	err := Wrapf(KindTraining, cause, "trend solve failed")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if stderrors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
	if err.Error() != "training: trend solve failed: matrix is singular" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	err := Wrapf(KindPersistence, Newf(KindUnknown, "inner"), "save failed")
	if got := KindOf(err); got != KindPersistence {
		t.Errorf("KindOf = %v, want KindPersistence", got)
	}

	wrapped := fmt.Errorf("outer context: %w", Newf(KindDataValidation, "bad timestamp"))
	if got := KindOf(wrapped); got != KindDataValidation {
		t.Errorf("KindOf through fmt wrap = %v, want KindDataValidation", got)
	}

	if got := KindOf(fmt.Errorf("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want KindUnknown", got)
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	err := Newf(KindPrediction, "model is not fitted")

	if !stderrors.Is(err, &Error{Kind: KindPrediction}) {
		t.Error("errors.Is should match on kind")
	}
	if stderrors.Is(err, &Error{Kind: KindTraining}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestKindMarshalJSON(t *testing.T) {
	data, err := KindTraining.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(data) != `"training"` {
		t.Errorf("MarshalJSON = %s", data)
	}
}

package errors

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		panic("test panic message")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "TestOperation" {
		t.Errorf("Expected operation 'TestOperation', got '%s'", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if panicErr.Error() != "panic in TestOperation: test panic message" {
		t.Errorf("unexpected message '%s'", panicErr.Error())
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		return nil
	}

	if err := testFunc(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	base := fmt.Errorf("original failure")
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		err = base
		panic("late panic")
	}

	err := testFunc()
	if !errors.Is(err, base) {
		t.Errorf("Expected wrapped original error, got %v", err)
	}
	if !strings.Contains(err.Error(), "late panic") {
		t.Errorf("Expected panic value in message, got %v", err)
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("ok", func() error { return nil }); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	want := fmt.Errorf("plain error")
	if err := SafeExecute("fails", func() error { return want }); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}

	err := SafeExecute("panics", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "panics" {
		t.Errorf("unexpected operation %s", panicErr.Operation)
	}
}

func TestCheckMatrix(t *testing.T) {
	type grid [][]float64
	at := func(g grid) interface{ At(int, int) float64 } { return matrixFunc(g) }

	if err := CheckMatrix("ok", at(grid{{1, 2}, {3, 4}}), 2, 2); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	err := CheckMatrix("bad", at(grid{{1, 2}, {math.NaN(), 4}}), 2, 2)
	var numErr *NumericalInstabilityError
	if !errors.As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Row != 1 || numErr.Column != 0 {
		t.Errorf("unexpected location (%d, %d)", numErr.Row, numErr.Column)
	}
}

type matrixFunc [][]float64

func (m matrixFunc) At(i, j int) float64 { return m[i][j] }

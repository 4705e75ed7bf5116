package glosa

import (
	"fmt"
	"strings"
)

// The edit helpers below apply one user action and re-run Allocate over the
// whole set. They return the edited lines even when the allocation conflicts,
// so the caller can keep the user's input and surface the conflict next to it.
// Input that fails validation is rejected and the original lines come back.

// SetManual pins line i to amount.
func SetManual(glosas []Glosa, i int, amount, target int64) ([]Glosa, error) {
	if err := checkIndex(glosas, i); err != nil {
		return clone(glosas), err
	}
	if amount < 0 {
		return clone(glosas), &ValidationError{Index: i, Reason: fmt.Sprintf("amount %d is negative", amount)}
	}
	edited := clone(glosas)
	edited[i].Amount = amount
	edited[i].Manual = true
	return reallocate(glosas, edited, target)
}

// ClearManual returns line i to automatic allocation.
func ClearManual(glosas []Glosa, i int, target int64) ([]Glosa, error) {
	if err := checkIndex(glosas, i); err != nil {
		return clone(glosas), err
	}
	edited := clone(glosas)
	edited[i].Manual = false
	return reallocate(glosas, edited, target)
}

// Add appends an automatic line.
func Add(glosas []Glosa, description string, target int64) ([]Glosa, error) {
	edited := append(clone(glosas), Glosa{Description: strings.TrimSpace(description)})
	return reallocate(glosas, edited, target)
}

// Remove drops line i.
func Remove(glosas []Glosa, i int, target int64) ([]Glosa, error) {
	if err := checkIndex(glosas, i); err != nil {
		return clone(glosas), err
	}
	edited := make([]Glosa, 0, len(glosas)-1)
	edited = append(edited, glosas[:i]...)
	edited = append(edited, glosas[i+1:]...)
	return reallocate(glosas, edited, target)
}

// Move relocates line from to position to. Since the remainder follows the
// last automatic line, moving lines can move the remainder too.
func Move(glosas []Glosa, from, to int, target int64) ([]Glosa, error) {
	if err := checkIndex(glosas, from); err != nil {
		return clone(glosas), err
	}
	if err := checkIndex(glosas, to); err != nil {
		return clone(glosas), err
	}
	edited := clone(glosas)
	line := edited[from]
	edited = append(edited[:from], edited[from+1:]...)
	edited = append(edited[:to], append([]Glosa{line}, edited[to:]...)...)
	return reallocate(glosas, edited, target)
}

// Rename replaces the description of line i.
func Rename(glosas []Glosa, i int, description string, target int64) ([]Glosa, error) {
	if err := checkIndex(glosas, i); err != nil {
		return clone(glosas), err
	}
	edited := clone(glosas)
	edited[i].Description = strings.TrimSpace(description)
	return reallocate(glosas, edited, target)
}

func reallocate(original, edited []Glosa, target int64) ([]Glosa, error) {
	if err := Validate(edited); err != nil {
		return clone(original), err
	}
	out, err := Allocate(edited, target)
	if err != nil {
		Renumber(out)
	}
	return out, err
}

func checkIndex(glosas []Glosa, i int) error {
	if i < 0 || i >= len(glosas) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i+1, len(glosas))
	}
	return nil
}

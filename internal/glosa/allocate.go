package glosa

import "fmt"

// Allocate returns a copy of glosas whose automatic amounts make the total
// equal target. Manual lines are never touched. The integer remainder of the
// even split goes entirely to the last automatic line in slice order, so
// re-running Allocate on its own output yields the same amounts.
//
// On a *ValidationError or *ConflictError the lines come back unchanged.
// A negative target is a caller bug and panics.
func Allocate(glosas []Glosa, target int64) ([]Glosa, error) {
	if target < 0 {
		panic(fmt.Sprintf("glosa: negative target subtotal %d", target))
	}
	if err := Validate(glosas); err != nil {
		return clone(glosas), err
	}

	var manualSum int64
	auto := make([]int, 0, len(glosas))
	for i, g := range glosas {
		if g.Manual {
			manualSum += g.Amount
			continue
		}
		auto = append(auto, i)
	}

	if manualSum > target {
		return clone(glosas), &ConflictError{Kind: ConflictExcess, ManualSum: manualSum, Target: target}
	}
	if len(auto) == 0 {
		if manualSum != target {
			return clone(glosas), &ConflictError{Kind: ConflictMismatch, ManualSum: manualSum, Target: target}
		}
		out := clone(glosas)
		Renumber(out)
		return out, nil
	}

	remainder := target - manualSum
	n := int64(len(auto))
	share := remainder / n
	leftover := remainder - share*n

	out := clone(glosas)
	for _, i := range auto {
		out[i].Amount = share
	}
	out[auto[len(auto)-1]].Amount += leftover
	Renumber(out)
	return out, nil
}

// Sum adds every amount.
func Sum(glosas []Glosa) int64 {
	var total int64
	for _, g := range glosas {
		total += g.Amount
	}
	return total
}

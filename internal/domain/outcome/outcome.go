// Package outcome resolves a settled condition to its ground-truth bit.
package outcome

import "github.com/okian/foresight/internal/domain/model"

// Outcome bit values for binary markets.
const (
	No  = 0
	Yes = 1
)

// Resolve returns the realized outcome of a condition, or nil while the
// condition is unsettled. Only binary markets are modeled; there is no
// ternary or numeric outcome.
func Resolve(c model.Condition) *int {
	if !c.Settled {
		return nil
	}
	out := No
	if c.ResolvedToYes {
		out = Yes
	}
	return &out
}

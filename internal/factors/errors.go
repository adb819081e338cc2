package factors

import "fmt"

// InvalidParameterError reports an argument the ranker cannot work with.
// For k it carries the requested value and the number of model features,
// which is also the largest k allowed.
type InvalidParameterError struct {
	Param     string
	Requested int
	Available int
	Minimum   int
	Reason    string
}

// Max is the largest permissible value for Param.
func (e *InvalidParameterError) Max() int { return e.Available }

func (e *InvalidParameterError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("invalid %s: %s (got %d, want %d)", e.Param, e.Reason, e.Requested, e.Available)
	case e.Minimum > 0 && e.Requested < e.Minimum:
		return fmt.Sprintf("you requested %d top features; please choose at least %d", e.Requested, e.Minimum)
	default:
		return fmt.Sprintf("you requested %d top features, which is more than the %d features from the original model. Please choose %d or less.",
			e.Requested, e.Available, e.Max())
	}
}

// GroupError reports a categorical group that cannot be aligned with the
// matrix columns.
type GroupError struct {
	Variable string
	Reason   string
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("categorical variable %q: %s", e.Variable, e.Reason)
}

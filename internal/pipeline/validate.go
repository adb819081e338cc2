package pipeline

import (
	"fmt"
	"strings"

	"github.com/your-org/healthcareai-go/internal/frame"
)

// ValidateModelInput checks the predicted column against the model type before
// any preparation runs. Classification needs exactly the two values Y and N;
// regression needs more than two distinct, numeric values.
func ValidateModelInput(f *frame.Frame, modelType, predictedColumn string) error {
	col, ok := f.Column(predictedColumn)
	if !ok {
		return fmt.Errorf("%w: predicted column %q not found", ErrInvalidInput, predictedColumn)
	}
	values := col.Unique()

	switch modelType {
	case Classification:
		switch {
		case len(values) > 2:
			return fmt.Errorf("%w: for model_type=classification, the prediction column should be binary, since it contains %s, which is more than 2 values",
				ErrInvalidInput, listValues(values))
		case len(values) == 1:
			return fmt.Errorf("%w: for model_type=classification, the prediction column should be binary, since it contains %s, which is equal to 1 value",
				ErrInvalidInput, listValues(values))
		case len(values) != 2 || values[0] != "N" || values[1] != "Y":
			return fmt.Errorf("%w: for model_type=classification, the prediction column should only hold N or Y, since it contains %s, which is not Y or N",
				ErrInvalidInput, listValues(values))
		}
	case Regression:
		if len(values) <= 2 {
			return fmt.Errorf("%w: for model_type=regression, the prediction column should not be binary, since it contains %s, which less or equal to 2 values",
				ErrInvalidInput, listValues(values))
		}
		if !col.IsNumeric() {
			return fmt.Errorf("%w: for model_type=regression, all values in the prediction column should only be numerical data", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: model type %q must be %s or %s", ErrInvalidInput, modelType, Classification, Regression)
	}
	return nil
}

func listValues(values []string) string {
	return "[" + strings.Join(values, " ") + "]"
}

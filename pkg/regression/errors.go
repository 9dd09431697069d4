package regression

import "errors"

var (
	ErrEmptyDesign                  = errors.New("design matrix has no rows")
	ErrDimensionMismatch            = errors.New("dimension mismatch")
	ErrSingularMatrix               = errors.New("XᵀX is singular")
	ErrInsufficientDegreesOfFreedom = errors.New("insufficient degrees of freedom")
)

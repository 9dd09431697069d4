package fl

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks fatal errors that abort a run.
	ErrValidation = errors.New("validation error")

	ErrNoContributions  = errors.New("no contributions provided for round")
	ErrUnknownPhase     = errors.New("unknown phase")
	ErrUnknownKind      = errors.New("unknown payload kind")
	ErrUnexpectedKind   = errors.New("unexpected payload kind for phase")
	ErrFeatureMismatch  = errors.New("sites report different feature counts")
	ErrDuplicateSite    = errors.New("site contributed twice in one round")
	ErrUnknownSite      = errors.New("contribution from a site outside the run")
	ErrEmptyFeatures    = errors.New("feature selection is empty")
	ErrUnknownFeature   = errors.New("unrecognized feature")
	ErrIncompleteRecord = errors.New("record does not carry every selected feature")
	ErrInvalidLambda    = errors.New("lambda must be a non-negative number")
	ErrRunCompleted     = errors.New("run already completed")
	ErrSiteFailed       = errors.New("site failed")
)

// FeatureMismatchError names two sites that disagree on the feature count.
type FeatureMismatchError struct {
	SiteA, SiteB         string
	FeaturesA, FeaturesB int
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("%s: site %q has %d features, site %q has %d",
		ErrFeatureMismatch, e.SiteA, e.FeaturesA, e.SiteB, e.FeaturesB)
}

func (e *FeatureMismatchError) Unwrap() []error {
	return []error{ErrValidation, ErrFeatureMismatch}
}

// Validation wraps err so that it matches ErrValidation.
func Validation(err error) error {
	if err == nil || errors.Is(err, ErrValidation) {
		return err
	}

	return errors.Join(ErrValidation, err)
}

package wire

import "errors"

// Validator accumulates errors found while validating a frame's size and
// field invariants, so a caller can run every check before deciding whether
// to drop a packet instead of bailing out on the first problem found.
type Validator struct {
	allowMultiErrs bool
	accum          []error
}

// NewValidator returns a Validator. When allowMultiErrs is false the
// validator keeps only the first error reported to it.
func NewValidator(allowMultiErrs bool) Validator {
	return Validator{allowMultiErrs: allowMultiErrs}
}

func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

func (v *Validator) Err() error {
	if len(v.accum) == 1 {
		return v.accum[0]
	} else if len(v.accum) == 0 {
		return nil
	}
	return errors.Join(v.accum...)
}

// AddError records err. If the validator was built with allowMultiErrs=false
// and already holds an error, err is discarded.
func (v *Validator) AddError(err error) {
	if len(v.accum) != 0 && !v.allowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}

package netstack

import "errors"

// ParseErrorKind enumerates the structural failures a codec's ValidateX
// method can surface, per the header parsing rules of each wire format.
type ParseErrorKind uint8

const (
	_ ParseErrorKind = iota
	InvalidLength
	InvalidChecksum
	InvalidVersion
	InvalidHeaderLength
	InvalidTTL
	InvalidHardwareLen
	InvalidProtocolLen
)

func (k ParseErrorKind) String() string {
	switch k {
	case InvalidLength:
		return "invalid length"
	case InvalidChecksum:
		return "invalid checksum"
	case InvalidVersion:
		return "invalid version"
	case InvalidHeaderLength:
		return "invalid header length"
	case InvalidTTL:
		return "invalid TTL"
	case InvalidHardwareLen:
		return "invalid hardware address length"
	case InvalidProtocolLen:
		return "invalid protocol address length"
	default:
		return "unknown parse error"
	}
}

// ParseError reports a single codec validation failure, identified by Kind
// so that callers can classify drops with errors.As without string
// matching, while Proto and Detail keep the message human-readable.
type ParseError struct {
	Kind   ParseErrorKind
	Proto  string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Proto + ": " + e.Kind.String()
	}
	return e.Proto + ": " + e.Kind.String() + ": " + e.Detail
}

// Validator accumulates header validation errors across the several checks
// a codec's ValidateSize/ValidateExceptChecksum/ValidateChecksum methods
// perform, so a handler can
// run every check and then inspect the result once instead of returning on
// the first failure.
type Validator struct {
	allowMultiErrs bool
	accum          []error
}

// NewValidator returns a Validator. If allowMultiErrs is true, Err joins
// every accumulated error instead of keeping only the first.
func NewValidator(allowMultiErrs bool) Validator {
	return Validator{allowMultiErrs: allowMultiErrs}
}

// ResetErr clears all accumulated errors, readying the Validator for reuse.
func (v *Validator) ResetErr() { v.accum = v.accum[:0] }

// HasError reports whether any error has been accumulated.
func (v *Validator) HasError() bool { return len(v.accum) != 0 }

// AddError accumulates a validation failure. Panics on a nil argument.
func (v *Validator) AddError(err error) {
	if err == nil {
		panic("netstack: AddError called with nil error")
	}
	if len(v.accum) != 0 && !v.allowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}

// Err returns nil if no error was accumulated, the single error if exactly
// one was, or a joined error otherwise.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// ErrPop returns Err and resets the Validator in a single call, the common
// "check then drop" pattern used by protocol handlers.
func (v *Validator) ErrPop() error {
	err := v.Err()
	v.ResetErr()
	return err
}

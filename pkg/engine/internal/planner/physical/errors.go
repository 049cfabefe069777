package physical

import "errors"

// ErrParse is returned when a plan or one of its expressions is malformed.
var ErrParse = errors.New("malformed plan")

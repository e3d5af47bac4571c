package mutarget

import (
	"errors"
	"fmt"
)

var (
	ErrConfig          = errors.New("mutarget: configuration error")
	ErrInvalidVolume   = fmt.Errorf("%w: invalid volume identity", ErrConfig)
	ErrDuplicateVolume = fmt.Errorf("%w: duplicate volume identity", ErrConfig)
	ErrOutput          = fmt.Errorf("%w: output channel", ErrConfig)
	ErrOrder           = errors.New("mutarget: callback order violation")
)

package kvcache

import (
	"errors"
	"fmt"
)

// ErrNotNumeric is returned by Increment/Decrement when the stored value is
// not an integer.
var ErrNotNumeric = errors.New("kvcache: value is not numeric")

// DriverNotFoundError is returned by Registry lookups of unknown names.
type DriverNotFoundError struct {
	Name string
}

func (e *DriverNotFoundError) Error() string {
	return fmt.Sprintf("kvcache: cache driver for [%s] not found", e.Name)
}

package heap

import "fmt"

// FaultCode identifies the kind of invalid memory access.
type FaultCode string

const (
	// FaultNullDereference is a load or store through the null reference.
	FaultNullDereference FaultCode = "NULL_DEREFERENCE"

	// FaultOutOfBounds is an offset or index outside the object payload.
	FaultOutOfBounds FaultCode = "OUT_OF_BOUNDS"

	// FaultBadAddress is a raw address not covered by any live block.
	FaultBadAddress FaultCode = "BAD_ADDRESS"

	// FaultWrongShape is an access that does not match the object's shape,
	// such as an item load on a struct.
	FaultWrongShape FaultCode = "WRONG_SHAPE"

	// FaultNegativeLength is an allocation with a negative length.
	FaultNegativeLength FaultCode = "NEGATIVE_LENGTH"

	// FaultTooLarge is an allocation whose payload exceeds MaxObjectSize.
	FaultTooLarge FaultCode = "TOO_LARGE"
)

// Fault describes an invalid memory access.
type Fault struct {
	Code    FaultCode
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func fault(code FaultCode, format string, args ...any) {
	panic(&Fault{Code: code, Message: fmt.Sprintf(format, args...)})
}

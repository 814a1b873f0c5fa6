package config

import (
	"testing"

	"github.com/roach88/tracejit/internal/descr"
	"github.com/roach88/tracejit/internal/ir"
)

func arrayOfPointers(t *testing.T) ir.ArrayDescr {
	t.Helper()
	return descr.NewRegistry().ArrayDescrOf(descr.Ptr)
}

package future

import (
	"errors"

	"github.com/exengine-go/exengine/errs"
)

func errorsAsTimeout(err error, target **errs.Timeout) bool {
	return errors.As(err, target)
}

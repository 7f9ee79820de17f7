package reconcile

import (
	"errors"
	"fmt"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/sinkerrors"
)

var ErrPathologicalDuplicates = errors.New("too many existing reports to replace")

// DuplicatesError is returned when a REPLACE finds more existing reports than
// it is allowed to clean up. The message is quarantined, not retried.
type DuplicatesError struct {
	UploadID string
	Service  string
	Action   string
	Count    int
	Limit    int
}

func (e *DuplicatesError) Error() string {
	return fmt.Sprintf("%s: %d reports for upload %s stage %s/%s, limit is %d",
		ErrPathologicalDuplicates, e.Count, e.UploadID, e.Service, e.Action, e.Limit)
}

func (e *DuplicatesError) Is(target error) bool {
	return target == ErrPathologicalDuplicates || target == sinkerrors.ErrBadRequest
}

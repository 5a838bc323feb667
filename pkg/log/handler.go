package log

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var stackOnce sync.Once

// configureErrorStack makes zerolog's Stack() emit the stack trace recorded
// by cockroachdb/errors instead of the logging call site.
func configureErrorStack() {
	stackOnce.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			if st := extractStacktrace(err); st != "" {
				return st
			}
			return nil
		}
	})
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

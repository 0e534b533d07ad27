package database

import (
	"errors"

	"github.com/booktalk/backend/internal/apperr"
	"gorm.io/gorm"
)

// TranslateError converts storage errors into the application's error
// variants. notFound is used when the record does not exist; uniqueFields
// names the columns reported on a unique index violation. Other errors are
// returned unchanged.
func TranslateError(err error, notFound string, uniqueFields ...string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if notFound == "" {
			notFound = "no item found"
		}
		return apperr.NotFound(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Duplicate(uniqueFields...)
	default:
		return err
	}
}

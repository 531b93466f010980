package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// translate maps gorm errors onto the package sentinels. The database must
// be opened with gorm.Config{TranslateError: true} for unique violations to
// surface as gorm.ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

func paginate(q *gorm.DB, offset, limit int) *gorm.DB {
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	return q
}

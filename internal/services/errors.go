package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("card service: card not found")
	// ErrInvalidURL indicates a URL that is not an absolute http(s) address.
	ErrInvalidURL = errors.New("card service: invalid url")
	// ErrInvalidStatus indicates an unknown card status.
	ErrInvalidStatus = errors.New("card service: invalid status")
	// ErrInvalidSetting indicates a settings value outside its allowed range.
	ErrInvalidSetting = errors.New("settings service: invalid setting")
	// ErrFriendLinkNotFound indicates the requested friend link does not exist.
	ErrFriendLinkNotFound = errors.New("friend link service: link not found")
	// ErrFriendLinkExists indicates a friend link with the same URL already exists.
	ErrFriendLinkExists = errors.New("friend link service: link already exists")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

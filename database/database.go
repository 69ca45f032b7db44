package database

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenFromEnv creates the shared database connection from DATABASE_DSN and
// DATABASE_DRIVER. When the driver is unset it is inferred from the DSN.
func OpenFromEnv() (*gorm.DB, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		return nil, errors.New("database: DATABASE_DSN environment variable is required")
	}

	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = inferDriverFromDSN(dsn)
		if driver == "" {
			return nil, errors.New("database: DATABASE_DRIVER environment variable is required when DSN does not contain a scheme")
		}
	}

	return Open(driver, dsn)
}

// Open initialises a Gorm instance for the given driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite", "sqlite3":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("database: unsupported database driver %q", driver)
	}
}

func inferDriverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "://mysql"):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return "sqlite"
	default:
		return ""
	}
}

// IsDuplicate reports whether err is a unique-constraint violation. Gorm is
// opened with TranslateError so driver-specific codes normalize to
// ErrDuplicatedKey. Conflicts surface to callers as 409 responses, never
// retried.
func IsDuplicate(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrDuplicatedKey)
}

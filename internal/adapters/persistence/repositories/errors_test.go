package repositories

import (
	"errors"
	"fmt"
	"testing"

	"school-crm-api/internal/core/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		dup  bool
	}{
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"mysql 1062", &mysql.MySQLError{Number: 1062}, true},
		{"wrapped mysql 1062", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062}), true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"mysql other", &mysql.MySQLError{Number: 1452}, false},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError(tc.err)
			if errors.Is(got, domain.ErrDuplicateEntry) != tc.dup {
				t.Fatalf("translateError(%v) = %v", tc.err, got)
			}
		})
	}

	if translateError(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

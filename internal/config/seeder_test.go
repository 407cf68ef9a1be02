package config

import (
	"context"
	"testing"

	"school-crm-api/internal/pkg/password"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSeederDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return db, mock
}

func TestSeederCreatesAdmin(t *testing.T) {
	db, mock := newSeederDB(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `users` WHERE role = \\?").
		WithArgs("ADMIN").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO `users`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	seeder := NewSeeder(db, password.NewBcrypt(bcrypt.MinCost), SeedConfig{
		AdminEmail:    "admin@school.test",
		AdminPassword: "ChangeMe123!",
	}, zerolog.Nop())

	if err := seeder.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSeederSkipsWhenAdminExists(t *testing.T) {
	db, mock := newSeederDB(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `users` WHERE role = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	seeder := NewSeeder(db, password.NewBcrypt(bcrypt.MinCost), SeedConfig{
		AdminEmail:    "admin@school.test",
		AdminPassword: "ChangeMe123!",
	}, zerolog.Nop())

	if err := seeder.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSeederDisabledWithoutCredentials(t *testing.T) {
	db, mock := newSeederDB(t)

	seeder := NewSeeder(db, password.NewBcrypt(bcrypt.MinCost), SeedConfig{}, zerolog.Nop())
	if err := seeder.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no queries expected: %v", err)
	}
}

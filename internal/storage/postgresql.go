// Package storage реализует хранилище контроллера доступа на PostgreSQL.
//
// Хранилище владеет записями доступа к платформам и журналом действий.
// Мутации записей доступа выполняются атомарными SQL-операциями:
// активация триала — условным обновлением по trial_status, учет
// действий — инкрементом счетчика на стороне базы.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage инкапсулирует соединение с PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New открывает подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{DB: db}, nil
}

// CheckDatabaseReady проверяет, что схема развернута и база отвечает.
func CheckDatabaseReady(s *Storage) error {
	var exists bool
	err := s.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'platform_access'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table platform_access missing or query error: %w", err)
	}
	return nil
}

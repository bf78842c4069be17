package database

import (
	"database/sql"
)

type PgRoomRepository struct {
	conn *sql.DB
}

func NewPgRoomRepository(dsn string) (*PgRoomRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgRoomRepository{conn: db}, nil
}

func (db *PgRoomRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRoomRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

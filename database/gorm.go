package database

import (
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the persistence handle shared by the server, CLI and cron jobs
type Storage interface {
	Init() error
	Close() error
	DB() *gorm.DB
	HealthCheck() error
}

type GORMStore struct {
	db *gorm.DB
}

// StartGORM opens the database selected by DB_DRIVER
func StartGORM(cfg *config.Config) (*GORMStore, error) {
	if cfg.Database.Driver == "sqlite" {
		return OpenSQLite(cfg.Database.SQLitePath, cfg.IsProduction())
	}
	return StartPostgres(cfg)
}

// StartPostgres initializes a GORM connection to PostgreSQL
func StartPostgres(cfg *config.Config) (*GORMStore, error) {
	db := cfg.Database

	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		db.Host,
		db.UserName,
		db.Password,
		db.Name,
		db.Port,
		db.SSLMode,
	)

	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig(cfg.IsProduction(), true))
	if err != nil {
		log.Println("Unable to connect to PostgreSQL with GORM:", err)
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Successfully connected to PostgreSQL Database with GORM.")

	return &GORMStore{db: gdb}, nil
}

// OpenSQLite opens a SQLite database. Use "file:name?mode=memory&cache=shared" for an
// in-memory database.
func OpenSQLite(dsn string, quiet bool) (*GORMStore, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig(quiet, false))
	if err != nil {
		log.Println("Unable to open SQLite database:", err)
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection keeps transactions from failing with SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	return &GORMStore{db: gdb}, nil
}

func gormConfig(quiet, prepareStmt bool) *gorm.Config {
	gormLogger := logger.Default.LogMode(logger.Info)
	if quiet {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	return &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            prepareStmt,
		TranslateError:         true, // unique violations surface as gorm.ErrDuplicatedKey
	}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	log.Println("Running GORM AutoMigrate for all models...")

	if err := Migrate(s.db); err != nil {
		log.Println("Error running AutoMigrate:", err)
		return err
	}

	log.Println("GORM AutoMigrate completed successfully!")
	return nil
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Payment{},
		&model.Enrollment{},

		&model.UserNotification{},
		&model.NotificationDeadLetter{},

		&model.JWTTokenBlacklist{},
		&model.CronJobLog{},
		&model.AdminAuditLog{},
	)
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	log.Println("Closing GORM database connection...")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM DB instance for use in services/handlers
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

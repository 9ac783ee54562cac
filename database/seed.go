package database

import (
	"fmt"
	"log"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeedOptions carries the credentials for seeded accounts
type SeedOptions struct {
	AdminEmail         string
	AdminPassword      string
	InstructorEmail    string
	InstructorPassword string
}

// Seeder handles database seeding operations
type Seeder struct {
	db   *gorm.DB
	opts SeedOptions
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, opts SeedOptions) *Seeder {
	return &Seeder{db: db, opts: opts}
}

// RunSeeds seeds accounts and the sample catalog
func RunSeeds(db *gorm.DB, opts SeedOptions) error {
	return NewSeeder(db, opts).SeedAll()
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	if _, err := s.seedUser(s.opts.AdminEmail, s.opts.AdminPassword, "Platform Administrator", model.RoleAdmin); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	instructor, err := s.seedUser(s.opts.InstructorEmail, s.opts.InstructorPassword, "Demo Instructor", model.RoleInstructor)
	if err != nil {
		return fmt.Errorf("failed to seed instructor: %w", err)
	}

	if instructor != nil {
		if err := s.SeedCourses(instructor.ID); err != nil {
			return fmt.Errorf("failed to seed courses: %w", err)
		}
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// seedUser creates a user unless one with the email exists. Returns the existing or new user,
// or nil when credentials are not configured.
func (s *Seeder) seedUser(email, password, name, role string) (*model.User, error) {
	if email == "" || password == "" {
		log.Printf("⚠️  No credentials configured for %s user, skipping", role)
		return nil, nil
	}

	var existing model.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		log.Printf("⏭️  %s user already exists, skipping...", role)
		return &existing, nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}

	log.Printf("✅ Created %s user: %s\n", role, user.Email)
	return user, nil
}

// SeedCourses creates a free and a paid sample course
func (s *Seeder) SeedCourses(instructorID uint) error {
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Courses already exist, skipping...")
		return nil
	}

	courses := []model.Course{
		{
			InstructorID: instructorID,
			Title:        "Go Fundamentals",
			Description:  "Types, interfaces, goroutines and the standard library.",
			Price:        decimal.Zero,
			Currency:     "INR",
			Published:    true,
			Approved:     true,
		},
		{
			InstructorID: instructorID,
			Title:        "Building Payment Systems",
			Description:  "Orders, signatures, webhooks and idempotent reconciliation.",
			Price:        decimal.NewFromInt(500),
			Currency:     "INR",
			Published:    true,
			Approved:     true,
		},
		{
			InstructorID: instructorID,
			Title:        "Distributed Systems Workshop",
			Description:  "Draft course awaiting review.",
			Price:        decimal.RequireFromString("1499.50"),
			Currency:     "INR",
			Published:    true,
			Approved:     false,
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d courses\n", len(courses))
	return nil
}

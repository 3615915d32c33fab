package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionIDs are the personality questions every seeded profile answers.
var QuestionIDs = []string{
	"q_weekend_plans", "q_family", "q_faith", "q_ambition", "q_travel",
	"q_pets", "q_city_or_country", "q_night_owl",
}

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears matches, conversations, messages, selections, choices, outbox and users.
//  2. Creates 20 users (10 male, 10 female) with hashed passwords and random answers.
//  3. Every 4th user is premium; users 19 and 20 keep an incomplete profile.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "conversations", "matches", "choices", "selections", "outbox_entries", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		switch db.Dialector.Name() {
		case "mysql":
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		case "sqlite":
			db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table)
		}
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}
		tier := TierFree
		if i%4 == 0 {
			tier = TierPremium
		}

		answers := Answers{}
		for _, q := range QuestionIDs {
			answers[q] = r.Intn(5) + 1
		}
		lastActive := time.Now().UTC().Add(-time.Duration(r.Intn(500)) * time.Hour)

		user := User{
			Username:         fmt.Sprintf("user%d", i),
			Email:            fmt.Sprintf("user%d@example.com", i),
			PasswordHash:     string(hash),
			Gender:           gender,
			Active:           true,
			ProfileCompleted: i < 19,
			Tier:             tier,
			Answers:          datatypes.NewJSONType(answers),
			LastActiveAt:     &lastActive,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
	}
	log.Println("Seeded 20 users.")

	return nil
}

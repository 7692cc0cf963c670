package db

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wingmanhq/wingman/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
// A corrupt database file is moved aside and recreated empty so the system
// stays bootable; users re-authorize instead of the process refusing to start.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := open(dbPath)
	if err != nil {
		if !isFileBacked(dbPath) {
			return nil, err
		}
		corrupt := fmt.Sprintf("%s.corrupt.%d", dbPath, time.Now().Unix())
		log.Printf("⚠️ Credential store unreadable (%v), moving to %s and starting empty", err, corrupt)
		if renameErr := os.Rename(dbPath, corrupt); renameErr != nil {
			return nil, fmt.Errorf("move corrupt store aside: %w", renameErr)
		}
		db, err = open(dbPath)
		if err != nil {
			return nil, err
		}
	}

	// Generate API key on first run
	ensureAPIKey(db)

	return db, nil
}

func open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.ServiceCredential{}, &models.Config{}); err != nil {
		return nil, err
	}
	return db, nil
}

func isFileBacked(dbPath string) bool {
	return dbPath != "" && !strings.Contains(dbPath, ":memory:")
}

// ensureAPIKey generates API key if not exists
func ensureAPIKey(db *gorm.DB) {
	var config models.Config
	result := db.Where("key = ?", "api_key").First(&config)

	if result.Error != nil {
		// Generate new API key: wm-<32 hex chars>
		keyBytes := make([]byte, 16)
		rand.Read(keyBytes)
		apiKey := "wm-" + hex.EncodeToString(keyBytes)

		db.Create(&models.Config{
			Key:   "api_key",
			Value: apiKey,
		})
		log.Printf("🔑 Generated new API key: %s", apiKey)
	}
}

// GetAPIKey retrieves the API key from database
func GetAPIKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", "api_key").First(&config)
	return config.Value
}

// RegenerateAPIKey creates a new API key
func RegenerateAPIKey(db *gorm.DB) string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	apiKey := "wm-" + hex.EncodeToString(keyBytes)

	db.Model(&models.Config{}).Where("key = ?", "api_key").Update("value", apiKey)
	log.Printf("🔑 Regenerated API key: %s", apiKey)
	return apiKey
}

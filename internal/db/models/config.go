package models

// Config stores application-level key/value settings (e.g., the API key).
type Config struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

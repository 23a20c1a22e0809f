package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, float
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings holds the runtime-tunable engine configuration
type AppSettings struct {
	EngineEnabled              bool    `json:"engine_enabled"`
	WorkerCount                int     `json:"worker_count" validate:"min=1,max=64"`
	EvaluationIntervalMinutes  int     `json:"evaluation_interval_minutes" validate:"min=1"`
	MarketRefreshIntervalHours int     `json:"market_refresh_interval_hours" validate:"min=1"`
	CompetitorPollIntervalHours int    `json:"competitor_poll_interval_hours" validate:"min=1"`
	PriceCacheTTLSeconds       int     `json:"price_cache_ttl_seconds" validate:"min=1"`
	NotifyChangePercent        float64 `json:"notify_change_percent" validate:"gte=0"`
	ArchiveEnabled             bool    `json:"archive_enabled"`
	mu                         sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings. Before
// LoadSettings has run it returns the built-in defaults.
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	if appSettings != nil {
		defer settingsMu.RUnlock()
		return appSettings
	}
	settingsMu.RUnlock()

	settingsMu.Lock()
	defer settingsMu.Unlock()
	if appSettings == nil {
		appSettings = defaultAppSettings()
	}
	return appSettings
}

func defaultAppSettings() *AppSettings {
	return &AppSettings{
		EngineEnabled:               true,
		WorkerCount:                 5,
		EvaluationIntervalMinutes:   60,
		MarketRefreshIntervalHours:  24,
		CompetitorPollIntervalHours: 6,
		PriceCacheTTLSeconds:        300,
		NotifyChangePercent:         10,
		ArchiveEnabled:              false,
	}
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = defaultAppSettings()

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Apply loaded settings
	for _, setting := range settings {
		switch setting.Key {
		case "engine_enabled":
			appSettings.EngineEnabled = setting.Value == "true"
		case "worker_count":
			if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
				appSettings.WorkerCount = v
			}
		case "evaluation_interval_minutes":
			if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
				appSettings.EvaluationIntervalMinutes = v
			}
		case "market_refresh_interval_hours":
			if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
				appSettings.MarketRefreshIntervalHours = v
			}
		case "competitor_poll_interval_hours":
			if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
				appSettings.CompetitorPollIntervalHours = v
			}
		case "price_cache_ttl_seconds":
			if v, err := strconv.Atoi(setting.Value); err == nil && v > 0 {
				appSettings.PriceCacheTTLSeconds = v
			}
		case "notify_change_percent":
			if v, err := strconv.ParseFloat(setting.Value, 64); err == nil && v >= 0 {
				appSettings.NotifyChangePercent = v
			}
		case "archive_enabled":
			appSettings.ArchiveEnabled = setting.Value == "true"
		}
	}

	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Validate settings
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Convert settings to database format
	settingsMap := map[string]interface{}{
		"engine_enabled":                 fmt.Sprintf("%t", settings.EngineEnabled),
		"worker_count":                   strconv.Itoa(settings.WorkerCount),
		"evaluation_interval_minutes":    strconv.Itoa(settings.EvaluationIntervalMinutes),
		"market_refresh_interval_hours":  strconv.Itoa(settings.MarketRefreshIntervalHours),
		"competitor_poll_interval_hours": strconv.Itoa(settings.CompetitorPollIntervalHours),
		"price_cache_ttl_seconds":        strconv.Itoa(settings.PriceCacheTTLSeconds),
		"notify_change_percent":          strconv.FormatFloat(settings.NotifyChangePercent, 'f', -1, 64),
		"archive_enabled":                fmt.Sprintf("%t", settings.ArchiveEnabled),
	}

	// Save each setting
	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				// Create new setting
				setting = Setting{
					Key:   key,
					Value: fmt.Sprintf("%v", value),
					Type:  getSettingType(key),
				}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			// Update existing setting
			setting.Value = fmt.Sprintf("%v", value)
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	// Update global settings
	appSettings = settings
	return nil
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case "engine_enabled", "archive_enabled":
		return "boolean"
	case "notify_change_percent":
		return "float"
	default:
		return "integer"
	}
}

// Validate validates the settings
func (s *AppSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// ToJSON converts settings to JSON
func (s *AppSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// IsEngineEnabled returns whether scheduled price automation is enabled
func (s *AppSettings) IsEngineEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.EngineEnabled
}

// GetWorkerCount returns the batch evaluation worker count
func (s *AppSettings) GetWorkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WorkerCount
}

// GetEvaluationInterval returns the catalog evaluation interval
func (s *AppSettings) GetEvaluationInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.EvaluationIntervalMinutes) * time.Minute
}

// GetMarketRefreshInterval returns the market-condition refresh interval
func (s *AppSettings) GetMarketRefreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.MarketRefreshIntervalHours) * time.Hour
}

// GetCompetitorPollInterval returns the competitor polling interval
func (s *AppSettings) GetCompetitorPollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.CompetitorPollIntervalHours) * time.Hour
}

// GetPriceCacheTTL returns the TTL for cached price reads
func (s *AppSettings) GetPriceCacheTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.PriceCacheTTLSeconds) * time.Second
}

// GetNotifyChangePercent returns the swing threshold for operator alerts
func (s *AppSettings) GetNotifyChangePercent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NotifyChangePercent
}

// IsArchiveEnabled returns whether daily history export is enabled
func (s *AppSettings) IsArchiveEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ArchiveEnabled
}

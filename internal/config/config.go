// Package config holds engine thresholds and application settings
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine carries every threshold the monitoring engine uses. It is passed by value into each
// component call; there is no process-wide engine state.
type Engine struct {
	CriticalLevelFraction         float64  `json:"critical_level_fraction" yaml:"critical_level_fraction"`
	LowLevelFraction              float64  `json:"low_level_fraction" yaml:"low_level_fraction"`
	EarlyWarningAutonomyDays      float64  `json:"early_warning_autonomy_days" yaml:"early_warning_autonomy_days"`
	BaselinePerCapitaLitersPerDay float64  `json:"baseline_per_capita_liters_per_day" yaml:"baseline_per_capita_liters_per_day"`
	DefaultHouseholdSize          int      `json:"default_household_size" yaml:"default_household_size"`
	CoordinationThresholdDays     float64  `json:"coordination_threshold_days" yaml:"coordination_threshold_days"`
	AutonomyHorizonDays           float64  `json:"autonomy_horizon_days" yaml:"autonomy_horizon_days"`
	ConsumptionWindowDays         float64  `json:"consumption_window_days" yaml:"consumption_window_days"`
	ProximityRadiusMeters         float64  `json:"proximity_radius_meters" yaml:"proximity_radius_meters"`
	EarlyWarningWindowDays        float64  `json:"early_warning_window_days" yaml:"early_warning_window_days"`
	MaxParallelEvaluations        int      `json:"max_parallel_evaluations" yaml:"max_parallel_evaluations"`
	UrgentKeywords                []string `json:"urgent_keywords" yaml:"urgent_keywords"`
}

// DefaultEngine returns the thresholds agreed with the community leadership.
func DefaultEngine() Engine {
	return Engine{
		CriticalLevelFraction:         0.20,
		LowLevelFraction:              0.40,
		EarlyWarningAutonomyDays:      2,
		BaselinePerCapitaLitersPerDay: 50,
		DefaultHouseholdSize:          4,
		CoordinationThresholdDays:     5,
		AutonomyHorizonDays:           60,
		ConsumptionWindowDays:         14,
		ProximityRadiusMeters:         1500,
		EarlyWarningWindowDays:        30,
		MaxParallelEvaluations:        8,
		UrgentKeywords: []string{
			"urgente", "emergencia", "enfermo", "niños", "bebé", "hospital", "sin agua",
			"urgent", "emergency",
		},
	}
}

// Validate checks that thresholds are usable.
func (e Engine) Validate() error {
	switch {
	case e.CriticalLevelFraction <= 0 || e.CriticalLevelFraction >= 1:
		return fmt.Errorf("critical_level_fraction must be in (0,1), got %v", e.CriticalLevelFraction)
	case e.LowLevelFraction < e.CriticalLevelFraction || e.LowLevelFraction >= 1:
		return fmt.Errorf("low_level_fraction must be in [critical_level_fraction,1), got %v", e.LowLevelFraction)
	case e.EarlyWarningAutonomyDays <= 0:
		return errors.New("early_warning_autonomy_days must be positive")
	case e.BaselinePerCapitaLitersPerDay <= 0:
		return errors.New("baseline_per_capita_liters_per_day must be positive")
	case e.DefaultHouseholdSize < 1:
		return errors.New("default_household_size must be at least 1")
	case e.CoordinationThresholdDays <= 0:
		return errors.New("coordination_threshold_days must be positive")
	case e.AutonomyHorizonDays <= 0:
		return errors.New("autonomy_horizon_days must be positive")
	case e.ConsumptionWindowDays <= 0:
		return errors.New("consumption_window_days must be positive")
	case e.ProximityRadiusMeters < 0:
		return errors.New("proximity_radius_meters cannot be negative")
	case e.EarlyWarningWindowDays <= 0:
		return errors.New("early_warning_window_days must be positive")
	}
	return nil
}

// ProviderTier is a truckload a provider sells: up to BatchLiters at CostPerLiter.
type ProviderTier struct {
	BatchLiters  float64 `json:"batch_liters" yaml:"batch_liters"`
	CostPerLiter float64 `json:"cost_per_liter" yaml:"cost_per_liter"`

	// AvailableTrucks limits how many loads can be ordered; zero is unlimited.
	AvailableTrucks int `json:"available_trucks,omitempty" yaml:"available_trucks"`
}

// Provider is a fallback water provider quote used when the published price table is unreachable.
type Provider struct {
	Name  string         `json:"name" yaml:"name"`
	Tiers []ProviderTier `json:"tiers" yaml:"tiers"`
}

// App holds settings for the binaries.
type App struct {
	DBPath        string     `yaml:"db_path"`
	TelegramToken string     `yaml:"telegram_token"`
	NotifyChatIDs []int64    `yaml:"notify_chat_ids"`
	OpenAIAPIKey  string     `yaml:"openai_api_key"`
	QuotesURL     string     `yaml:"quotes_url"`
	CronSpec      string     `yaml:"cron_spec"`
	MetricsAddr   string     `yaml:"metrics_addr"`
	Providers     []Provider `yaml:"providers"`
	Engine        Engine     `yaml:"engine"`
}

// DefaultApp returns the settings used when no file or environment overrides exist.
func DefaultApp() App {
	return App{
		DBPath:      "",
		CronSpec:    "0 * * * *",
		MetricsAddr: ":9108",
		Engine:      DefaultEngine(),
	}
}

// Load builds the application config from defaults, an optional YAML file and the environment.
// A .env file in the working directory is loaded first when present.
func Load(path string) (App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := DefaultApp()

	if path == "" {
		path = os.Getenv("AGUASUR_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return App{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return App{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Printf("Loaded configuration from %s", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return App{}, err
	}

	if err := cfg.Engine.Validate(); err != nil {
		return App{}, fmt.Errorf("invalid engine configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *App) error {
	if v := os.Getenv("AGUASUR_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("AGUASUR_QUOTES_URL"); v != "" {
		cfg.QuotesURL = v
	}
	if v := os.Getenv("AGUASUR_CRON"); v != "" {
		cfg.CronSpec = v
	}
	if v := os.Getenv("AGUASUR_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("AGUASUR_NOTIFY_CHATS"); v != "" {
		ids, err := parseChatIDs(v)
		if err != nil {
			return err
		}
		cfg.NotifyChatIDs = ids
	}
	return nil
}

func parseChatIDs(v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q in AGUASUR_NOTIFY_CHATS: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

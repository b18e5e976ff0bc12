package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Detect DetectConfig `mapstructure:"detect"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	CORS   CORSConfig   `mapstructure:"cors"`
	I18n   I18nConfig   `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // für SQLite
}

// DetectConfig enthält die Einstellungen für den externen Schadenserkennungs-Dienst
type DetectConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	ConfParts      float64 `mapstructure:"conf_parts"`      // Schwellenwert für Fahrzeugteile
	ConfDamage     float64 `mapstructure:"conf_damage"`     // Schwellenwert für Schadensklassen
	ImgSize        int     `mapstructure:"imgsz"`           // Eingabegröße des Modells
	MaskIoUThresh  float64 `mapstructure:"mask_iou_thresh"` // IoU-Schwellenwert für Masken
	RenderOverlay  bool    `mapstructure:"render_overlay"`  // Overlay-Bild mit anfordern
}

// MQTTConfig enthält die Konfiguration für den MQTT-Publisher
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CORSConfig enthält die CORS-Einstellungen für die API
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// I18nConfig enthält die Einstellungen für die Lokalisierung der API-Meldungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
	LocalesDir      string `mapstructure:"locales_dir"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("CLAIMSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Konfiguration in Struct umwandeln
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.data_dir", "./data")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB-Standardwerte
	v.SetDefault("db.file", "./data/claimsight.db")

	// Detect-Standardwerte; die conf-Werte entsprechen dem mittleren
	// Analyse-Level der Gutachter-Ansicht
	v.SetDefault("detect.base_url", "http://localhost:8000")
	v.SetDefault("detect.timeout_seconds", 60)
	v.SetDefault("detect.conf_parts", 0.5)
	v.SetDefault("detect.conf_damage", 0.25)
	v.SetDefault("detect.imgsz", 640)
	v.SetDefault("detect.mask_iou_thresh", 0.1)
	v.SetDefault("detect.render_overlay", true)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "claimsight")
	v.SetDefault("mqtt.topic_prefix", "claimsight/events")

	// CORS-Standardwerte
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	// i18n-Standardwerte
	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.locales_dir", "./web/locales")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" && cfg.DB.File != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Restock  RestockConfig
	Storage  StorageConfig
	Drive    DriveConfig
}

type ServerConfig struct {
	Port           string
	APIPort        string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	URL        string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	WriteConcurrency   int
}

// DSN returns the postgres connection string, DATABASE_URL first
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type AppConfig struct {
	LogLevel  string
	LogFormat string // console or json
	ExportDir string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	DecisionTTLSeconds int
}

type RestockConfig struct {
	Sectors                  []string
	PerishableSectors        []string
	MinimumStockBase         int
	SkipSale                 bool
	SectorConcurrency        int
	EndedPromotionWindowDays int
	MaxRetries               int
	StaleRunMinutes          int // processing runs older than this are taken over, 0 never
	OrderDays                string // e.g. "mon:1,thu:2"
	DayWeights               string // e.g. "sat:1.2,sun:0.8"
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

type DriveConfig struct {
	CredentialsJSON string
	InboxPath       string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("API_PORT", "8081")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("STORE_DRIVER", "postgres")
		viper.SetDefault("DATABASE_URL", "")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "autorestock")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
		viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
		viper.SetDefault("DB_CONN_MAX_LIFETIME_MIN", 5)
		viper.SetDefault("DB_WRITE_CONCURRENCY", 10)
		viper.SetDefault("SQLITE_PATH", "./data/restock.db")
		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("LOG_FORMAT", "console")
		viper.SetDefault("APP_EXPORT_DIR", "./data/orders")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_DECISION_TTL_SECONDS", 3600)
		viper.SetDefault("RESTOCK_SECTORS", []string{})
		viper.SetDefault("RESTOCK_PERISHABLE_SECTORS", []string{})
		viper.SetDefault("RESTOCK_MIN_STOCK_BASE", 4)
		viper.SetDefault("RESTOCK_SKIP_SALE", false)
		viper.SetDefault("RESTOCK_SECTOR_CONCURRENCY", 4)
		viper.SetDefault("RESTOCK_ENDED_PROMO_WINDOW_DAYS", 14)
		viper.SetDefault("RESTOCK_MAX_RETRIES", 3)
		viper.SetDefault("RESTOCK_STALE_RUN_MINUTES", 60)
		viper.SetDefault("RESTOCK_ORDER_DAYS", "")
		viper.SetDefault("RESTOCK_DAY_WEIGHTS", "")
		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_BUCKET", "restock")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_PREFIX", "orders")
		viper.SetDefault("STORAGE_USE_SSL", false)
		viper.SetDefault("GOOGLE_CREDENTIALS_JSON", "")
		viper.SetDefault("DRIVE_INBOX_PATH", "restock/inbox")

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_EXPORT_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				APIPort:        viper.GetString("API_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Driver:     viper.GetString("STORE_DRIVER"),
				URL:        viper.GetString("DATABASE_URL"),
				Host:       viper.GetString("DB_HOST"),
				Port:       viper.GetString("DB_PORT"),
				User:       viper.GetString("DB_USER"),
				Password:   viper.GetString("DB_PASSWORD"),
				DBName:     viper.GetString("DB_NAME"),
				SSLMode:    viper.GetString("DB_SSLMODE"),
				SQLitePath: viper.GetString("SQLITE_PATH"),

				MaxOpenConns:       viper.GetInt("DB_MAX_OPEN_CONNS"),
				MaxIdleConns:       viper.GetInt("DB_MAX_IDLE_CONNS"),
				ConnMaxLifetimeMin: viper.GetInt("DB_CONN_MAX_LIFETIME_MIN"),
				WriteConcurrency:   viper.GetInt("DB_WRITE_CONCURRENCY"),
			},
			App: AppConfig{
				LogLevel:  viper.GetString("LOG_LEVEL"),
				LogFormat: viper.GetString("LOG_FORMAT"),
				ExportDir: viper.GetString("APP_EXPORT_DIR"),
			},
			Cache: CacheConfig{
				Enabled:            viper.GetBool("CACHE_ENABLED"),
				RedisURL:           viper.GetString("REDIS_URL"),
				RedisHost:          viper.GetString("REDIS_HOST"),
				RedisPort:          viper.GetString("REDIS_PORT"),
				RedisPassword:      viper.GetString("REDIS_PASSWORD"),
				RedisDB:            viper.GetInt("REDIS_DB"),
				DecisionTTLSeconds: viper.GetInt("CACHE_DECISION_TTL_SECONDS"),
			},
			Restock: RestockConfig{
				Sectors:                  stringList("RESTOCK_SECTORS"),
				PerishableSectors:        stringList("RESTOCK_PERISHABLE_SECTORS"),
				MinimumStockBase:         viper.GetInt("RESTOCK_MIN_STOCK_BASE"),
				SkipSale:                 viper.GetBool("RESTOCK_SKIP_SALE"),
				SectorConcurrency:        viper.GetInt("RESTOCK_SECTOR_CONCURRENCY"),
				EndedPromotionWindowDays: viper.GetInt("RESTOCK_ENDED_PROMO_WINDOW_DAYS"),
				MaxRetries:               viper.GetInt("RESTOCK_MAX_RETRIES"),
				StaleRunMinutes:          viper.GetInt("RESTOCK_STALE_RUN_MINUTES"),
				OrderDays:                viper.GetString("RESTOCK_ORDER_DAYS"),
				DayWeights:               viper.GetString("RESTOCK_DAY_WEIGHTS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				Prefix:    viper.GetString("STORAGE_PREFIX"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
			Drive: DriveConfig{
				CredentialsJSON: viper.GetString("GOOGLE_CREDENTIALS_JSON"),
				InboxPath:       viper.GetString("DRIVE_INBOX_PATH"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}

// stringList reads a list given either as a slice or as a comma separated env value
func stringList(key string) []string {
	var out []string
	for _, item := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings is the process-level configuration read from the environment.
// Task-level behavior lives in the admin-served configs, not here.
type Settings struct {
	ServerAddr string `mapstructure:"server_addr"`
	LogLevel   string `mapstructure:"log_level"`

	AdminAPIURL string `mapstructure:"admin_api_url"`
	AdminAPIKey string `mapstructure:"admin_api_key"`

	BackendAPIURL string `mapstructure:"backend_api_url"`
	BackendAPIKey string `mapstructure:"backend_api_key"`
	BackendJWT    string `mapstructure:"backend_jwt"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	AuditDBPath   string `mapstructure:"audit_db_path"`
	AuditFilePath string `mapstructure:"audit_file_path"`

	KnowledgeBaseDir string `mapstructure:"knowledge_base_dir"`
	VectorStorePath  string `mapstructure:"vector_store_path"`

	OllamaBaseURL string `mapstructure:"ollama_base_url"`

	// Guardrail score cut-offs, overridable per deployment.
	HighConfidenceThreshold   float64 `mapstructure:"high_confidence_threshold"`
	MediumConfidenceThreshold float64 `mapstructure:"medium_confidence_threshold"`
	LowConfidenceThreshold    float64 `mapstructure:"low_confidence_threshold"`
}

// LoadSettings reads settings from CONCIERGE_* environment variables with
// built-in defaults. Missing variables are not an error.
func LoadSettings() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("concierge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_addr", ":5055")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_api_url", "http://localhost:8000")
	v.SetDefault("backend_api_url", "http://localhost:8000/api")
	v.SetDefault("redis_addr", "")
	v.SetDefault("audit_db_path", "data/audit.db")
	v.SetDefault("audit_file_path", "logs/audit.jsonl")
	v.SetDefault("knowledge_base_dir", "knowledge_base")
	v.SetDefault("vector_store_path", "data/vector_store")
	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("high_confidence_threshold", 0.85)
	v.SetDefault("medium_confidence_threshold", 0.70)
	v.SetDefault("low_confidence_threshold", 0.50)

	// AutomaticEnv alone does not surface env-only keys through Unmarshal;
	// binding each declared key makes them visible.
	for _, key := range []string{
		"server_addr", "log_level",
		"admin_api_url", "admin_api_key",
		"backend_api_url", "backend_api_key", "backend_jwt",
		"redis_addr", "redis_password",
		"audit_db_path", "audit_file_path",
		"knowledge_base_dir", "vector_store_path",
		"ollama_base_url",
		"high_confidence_threshold", "medium_confidence_threshold", "low_confidence_threshold",
	} {
		if err := v.BindEnv(key); err != nil {
			return Settings{}, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

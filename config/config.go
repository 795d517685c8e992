package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Insurance   InsuranceConfig   `yaml:"insurance"`
	Bot         BotConfig         `yaml:"bot"`
	Admin       AdminConfig       `yaml:"admin"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	Mode         string `yaml:"mode"`          // debug, release
	AsyncUpdates bool   `yaml:"async_updates"` // webhook 立即返回，更新在协程池中处理
	Workers      int    `yaml:"workers"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql, postgres
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // http, eino
	APIURL      string  `yaml:"api_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type TelegramConfig struct {
	APIURL        string `yaml:"api_url"`
	BotToken      string `yaml:"bot_token"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// RecognitionEndpoint 识别服务的单个端点（对应 Mindee 自定义产品）
type RecognitionEndpoint struct {
	Account string `yaml:"account"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Async   bool   `yaml:"async"`
}

type RecognitionEndpoints struct {
	Identity     RecognitionEndpoint `yaml:"identity"`
	VehicleFront RecognitionEndpoint `yaml:"vehicle_front"`
	VehicleBack  RecognitionEndpoint `yaml:"vehicle_back"`
}

type RecognitionConfig struct {
	APIURL       string               `yaml:"api_url"`
	APIKey       string               `yaml:"api_key"`
	TempDir      string               `yaml:"temp_dir"`
	PollInterval time.Duration        `yaml:"poll_interval"`
	MaxPolls     int                  `yaml:"max_polls"`
	Endpoints    RecognitionEndpoints `yaml:"endpoints"`
}

type InsuranceConfig struct {
	Price    float64 `yaml:"price"`
	Currency string  `yaml:"currency"`
}

type BotConfig struct {
	UpdateTimeout time.Duration `yaml:"update_timeout"`
	AIWelcome     bool          `yaml:"ai_welcome"`
}

// AdminConfig 管理接口鉴权，Token 为空时管理接口不可用
type AdminConfig struct {
	Token string `yaml:"token"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Mode:         "debug",
			AsyncUpdates: true,
			Workers:      8,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/bot.db",
		},
		LLM: LLMConfig{
			Provider:    "http",
			APIURL:      "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo",
			MaxTokens:   300,
			Temperature: 0.7,
		},
		Telegram: TelegramConfig{
			APIURL: "https://api.telegram.org",
		},
		Recognition: RecognitionConfig{
			APIURL:       "https://api.mindee.net/v1",
			TempDir:      os.TempDir(),
			PollInterval: 2 * time.Second,
			MaxPolls:     30,
			Endpoints: RecognitionEndpoints{
				Identity:     RecognitionEndpoint{Account: "mindee", Name: "passport", Version: "1"},
				VehicleFront: RecognitionEndpoint{Account: "mindee", Name: "car_doc_front", Version: "1", Async: true},
				VehicleBack:  RecognitionEndpoint{Account: "mindee", Name: "car_doc_back", Version: "1", Async: true},
			},
		},
		Insurance: InsuranceConfig{
			Price:    100,
			Currency: "USD",
		},
		Bot: BotConfig{
			UpdateTimeout: 2 * time.Minute,
		},
	}
}

func loadConfig() *Config {
	// .env 只作为环境变量的补充来源，不存在时忽略
	if err := godotenv.Load(); err != nil {
		klog.V(6).Infof("未加载 .env 文件: %v", err)
	}

	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Errorf("解析配置文件失败: path=%s, error=%v", configPath, err)
		}
	}

	applyEnv(config)
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.BotToken = token
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		config.Telegram.WebhookURL = url
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		config.Telegram.WebhookSecret = secret
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}

	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		config.Admin.Token = token
	}

	if apiKey := os.Getenv("MINDEE_API_KEY"); apiKey != "" {
		config.Recognition.APIKey = apiKey
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if price := os.Getenv("INSURANCE_PRICE"); price != "" {
		if v, err := strconv.ParseFloat(price, 64); err == nil {
			config.Insurance.Price = v
		} else {
			klog.Warningf("INSURANCE_PRICE 无法解析: %q", price)
		}
	}
}

// Validate 检查启动所必需的配置项
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port cannot be empty")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token cannot be empty")
	}
	if c.Recognition.APIKey == "" {
		return fmt.Errorf("recognition.api_key cannot be empty")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key cannot be empty")
	}
	if c.Insurance.Price <= 0 {
		return fmt.Errorf("insurance.price must be > 0")
	}
	for name, ep := range map[string]RecognitionEndpoint{
		"identity":      c.Recognition.Endpoints.Identity,
		"vehicle_front": c.Recognition.Endpoints.VehicleFront,
		"vehicle_back":  c.Recognition.Endpoints.VehicleBack,
	} {
		if ep.Account == "" || ep.Name == "" || ep.Version == "" {
			return fmt.Errorf("missing configuration for recognition endpoint %q", name)
		}
	}
	return nil
}

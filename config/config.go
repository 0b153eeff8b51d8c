package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Dadata   DadataConfig   `yaml:"dadata"`
	Calc     CalcConfig     `yaml:"delivery_calc"`
	SMS      SMSConfig      `yaml:"sms"`
	Fulfill  FulfillConfig  `yaml:"fulfill"`

	Carriers map[string]CarrierConfig `yaml:"carriers"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

type DadataConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Secret  string `yaml:"secret"`
}

type CalcConfig struct {
	BaseURL     string `yaml:"base_url"`
	TestBaseURL string `yaml:"test_base_url"`
}

type SMSConfig struct {
	BaseURL string `yaml:"base_url"`
	Login   string `yaml:"login"`
	Pass    string `yaml:"pass"`
	From    string `yaml:"from"`
}

type FulfillConfig struct {
	HTTPAddr   string `yaml:"http_addr"`
	WorkerAddr string `yaml:"worker_http_addr"`
	AuthToken  string `yaml:"auth_token"`
	PublicDir  string `yaml:"public_dir"`
	SenderCity string `yaml:"sender_city"` // место отправки для калькулятора, msk/nsk
	TestMode   bool   `yaml:"test_mode"`

	SyncTimeoutSeconds  int `yaml:"sync_timeout_seconds"`
	AsyncTimeoutSeconds int `yaml:"async_timeout_seconds"`
	BatchConcurrency    int `yaml:"batch_concurrency"`

	AddressCacheTTLSeconds int `yaml:"address_cache_ttl_seconds"` // 0 = не протухает
	OrderLockTTLSeconds    int `yaml:"order_lock_ttl_seconds"`

	StatusOff             bool   `yaml:"status_off"`
	StatusCron            string `yaml:"status_cron"`
	StatusCycleSeconds    int    `yaml:"status_cycle_seconds"`
	StatusWindowFromHour  int    `yaml:"status_window_from_hour"`
	StatusWindowToHour    int    `yaml:"status_window_to_hour"`
	StatusRateLimitPerMin int    `yaml:"status_rate_limit_per_minute"`
}

type CarrierConfig struct {
	Off     bool   `yaml:"off"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Login   string `yaml:"login"`
	Pass    string `yaml:"pass"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Кто платит за забор/доставку. По умолчанию — клиент.
	CustomerPaysForPickup   *bool `yaml:"customer_pays_for_pickup"`
	CustomerPaysForDelivery *bool `yaml:"customer_pays_for_delivery"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

func (c CarrierConfig) PaysForPickup() bool {
	return c.CustomerPaysForPickup == nil || *c.CustomerPaysForPickup
}

func (c CarrierConfig) PaysForDelivery() bool {
	return c.CustomerPaysForDelivery == nil || *c.CustomerPaysForDelivery
}

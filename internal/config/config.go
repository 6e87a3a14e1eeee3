package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/mjm/serverless-blog/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Queue     QueueConfig     `yaml:"queue"`
	Blob      BlobConfig      `yaml:"blob"`
	Mail      MailConfig      `yaml:"mail"`
	Generator GeneratorConfig `yaml:"generator"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type QueueConfig struct {
	Brokers         []string `yaml:"brokers"`
	GenerateTopic   string   `yaml:"generate_topic"`
	ChangesTopic    string   `yaml:"changes_topic"`
	WebmentionTopic string   `yaml:"webmention_topic"`
	GroupID         string   `yaml:"group_id"`
}

type BlobConfig struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type MailConfig struct {
	Enabled bool   `yaml:"enabled"`
	Sender  string `yaml:"sender"`
	Region  string `yaml:"region"`
}

type GeneratorConfig struct {
	RecentCount    int    `yaml:"recent_count"`
	TemplatePrefix string `yaml:"template_prefix"`
	OEmbedEndpoint string `yaml:"oembed_endpoint"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if len(cfg.Queue.Brokers) == 0 {
		cfg.Queue.Brokers = []string{"localhost:9092"}
	}
	if cfg.Queue.GenerateTopic == "" {
		cfg.Queue.GenerateTopic = "blog.generate"
	}
	if cfg.Queue.ChangesTopic == "" {
		cfg.Queue.ChangesTopic = "blog.changes"
	}
	if cfg.Queue.WebmentionTopic == "" {
		cfg.Queue.WebmentionTopic = "blog.webmentions"
	}
	if cfg.Queue.GroupID == "" {
		cfg.Queue.GroupID = "blog-generator"
	}
	if cfg.Blob.Region == "" {
		cfg.Blob.Region = "us-east-1"
	}
	if cfg.Mail.Region == "" {
		cfg.Mail.Region = cfg.Blob.Region
	}
	if cfg.Generator.RecentCount == 0 {
		cfg.Generator.RecentCount = 20
	}
	if cfg.Generator.TemplatePrefix == "" {
		cfg.Generator.TemplatePrefix = "_templates/"
	}
	if cfg.Generator.OEmbedEndpoint == "" {
		cfg.Generator.OEmbedEndpoint = "https://publish.twitter.com/oembed"
	}

	return cfg, nil
}

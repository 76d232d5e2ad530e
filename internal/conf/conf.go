package conf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid 标记配置类错误（进程以退出码 2 结束）。
var ErrInvalid = errors.New("invalid configuration")

// Invalidf 构造配置错误。
func Invalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalid)...)
}

// Ingest 单次导入的全部选项（flag > env > 默认值）。
type Ingest struct {
	File           string        // OSM PBF 文件路径
	AdminFile      string        // 可选：预过滤的行政边界 PBF
	ImportanceFile string        // 可选：wikimedia importance CSV
	ESURL          string        // Elasticsearch 地址
	Index          string        // 目标索引名
	Wikidata       bool          // 是否请求外部标签服务
	Refresh        bool          // 成功后删除上一版本文档
	CreateIndex    bool          // 导入前重建索引
	MergeRoads     bool          // 合并同名相邻道路
	BatchSize      int           // bulk 批大小
	FlushInterval  time.Duration // bulk 刷新间隔
	WebhookURL     string        // 可选：运行通知 webhook
	MetricsAddr    string        // 可选：prometheus 监听地址
	LangPreference []string      // name.default 缺失时的语言回退顺序
}

// Defaults 返回带默认值的导入选项。
func Defaults() Ingest {
	return Ingest{
		ESURL:          "http://localhost:9200",
		Index:          "places",
		MergeRoads:     true,
		BatchSize:      500,
		FlushInterval:  2 * time.Second,
		LangPreference: []string{"en", "de", "fr", "es", "zh"},
	}
}

// Resolve 应用环境变量并校验。flag 未覆盖时 ELASTICSEARCH_URL 生效。
func (c *Ingest) Resolve(esFlagSet bool) error {
	_ = godotenv.Load()

	if !esFlagSet {
		c.ESURL = getEnv("ELASTICSEARCH_URL", c.ESURL)
	}
	if c.WebhookURL == "" {
		c.WebhookURL = getEnv("CYPRESS_WEBHOOK_URL", "")
	}
	if c.BatchSize == 0 {
		c.BatchSize = getEnvAsInt("CYPRESS_BATCH_SIZE", 500)
	}
	if c.ESURL == "" {
		return Invalidf("elasticsearch url is empty")
	}
	if c.Index == "" {
		return Invalidf("index name is empty")
	}
	if c.BatchSize <= 0 {
		return Invalidf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return nil
}

// Batch 批量导入配置（YAML）。
type Batch struct {
	Global  Global   `yaml:"global"`
	Regions []Region `yaml:"regions"`
}

// Global 批量导入全局段。
type Global struct {
	ESURL  string `yaml:"es_url"`
	TmpDir string `yaml:"tmp_dir"`
}

// Region 单个区域：名称 + 下载地址。
type Region struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadBatch 读取并校验批量配置文件。
func LoadBatch(path string) (*Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Invalidf("read batch config %s: %v", path, err)
	}
	var cfg Batch
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, Invalidf("parse batch config %s: %v", path, err)
	}
	if len(cfg.Regions) == 0 {
		return nil, Invalidf("batch config %s lists no regions", path)
	}
	if cfg.Global.TmpDir == "" {
		cfg.Global.TmpDir = os.TempDir()
	}
	for i, r := range cfg.Regions {
		if r.Name == "" || r.URL == "" {
			return nil, Invalidf("region #%d needs both name and url", i+1)
		}
	}
	return &cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

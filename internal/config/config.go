package config

import (
	"github.com/spf13/viper"

	"github.com/steampunk99/Hermes/internal/logger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Payout   PayoutConfig   `mapstructure:"payout"`
	Keystore KeystoreConfig `mapstructure:"keystore"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainId   int64                     `mapstructure:"chain_id"`  // 链ID
	RpcUrl    string                    `mapstructure:"rpc_url"`   // HTTP RPC节点URL
	WsUrl     string                    `mapstructure:"ws_url"`    // WebSocket节点URL（事件订阅）
	Contracts map[string]ContractConfig `mapstructure:"contracts"` // 合约配置
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`   // 合约地址
	Enabled  bool   `mapstructure:"enabled"`   // 是否启用此合约
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

// RelayConfig 元交易中继配置
type RelayConfig struct {
	PrivateKey    string  `mapstructure:"private_key"`    // 中继账户私钥（代付gas）
	GasLimit      uint64  `mapstructure:"gas_limit"`      // 固定gas预算
	ValidSeconds  int64   `mapstructure:"valid_seconds"`  // 请求有效期（秒）
	GasTokenRate  float64 `mapstructure:"gas_token_rate"` // 原生币到内部币种的换算汇率
	DripAmount    float64 `mapstructure:"drip_amount"`    // 每次补贴的gas额度
	MaxGasCredit  float64 `mapstructure:"max_gas_credit"` // gas额度上限
	DomainName    string  `mapstructure:"domain_name"`    // EIP-712域名称
	DomainVersion string  `mapstructure:"domain_version"` // EIP-712域版本
	ReceiptWait   int64   `mapstructure:"receipt_wait"`   // 等待回执超时（秒）
}

// PayoutConfig 移动支付出款服务配置
type PayoutConfig struct {
	BaseUrl string `mapstructure:"base_url"`
	ApiKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // 秒
}

// KeystoreConfig 托管私钥配置
type KeystoreConfig struct {
	MasterKey string `mapstructure:"master_key"` // AES-256主密钥（hex编码）
}

type TaskConfig struct {
	ScanInterval   int   `mapstructure:"scan_interval"`   // 对账扫描间隔（秒）
	MaxChunk       int64 `mapstructure:"max_chunk"`       // 单次扫描最大区块数
	PayoutInterval int   `mapstructure:"payout_interval"` // 出款重试间隔（秒）
	DripInterval   int   `mapstructure:"drip_interval"`   // gas补贴间隔（秒）
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/hermes")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "hermes")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("relay.gas_limit", 300000)
	viper.SetDefault("relay.valid_seconds", 600)
	viper.SetDefault("relay.gas_token_rate", 1.0)
	viper.SetDefault("relay.drip_amount", 0.01)
	viper.SetDefault("relay.max_gas_credit", 0.1)
	viper.SetDefault("relay.domain_name", "HermesForwarder")
	viper.SetDefault("relay.domain_version", "1")
	viper.SetDefault("relay.receipt_wait", 120)
	viper.SetDefault("payout.timeout", 30)
	viper.SetDefault("task.scan_interval", 300)
	viper.SetDefault("task.max_chunk", 1000)
	viper.SetDefault("task.payout_interval", 60)
	viper.SetDefault("task.drip_interval", 3600)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}

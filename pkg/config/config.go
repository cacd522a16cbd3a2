package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server      `mapstructure:"server"`
	Postgres     Postgres    `mapstructure:"postgres"`
	Broker       Broker      `mapstructure:"broker"`
	Relay        RelayConfig `mapstructure:"relay"`
	Sweep        Sweep       `mapstructure:"sweep"`
	Routing      Routing     `mapstructure:"routing"`
	HTTPClient   HTTPClient  `mapstructure:"httpClient"`
	LoggingLevel string      `mapstructure:"logging-level"`
}

type Server struct {
	Port        string `mapstructure:"port"`
	MetricsPort string `mapstructure:"metrics_port"`
	BodyLimit   int    `mapstructure:"body_limit"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type Broker struct {
	Rabbit Rabbit `mapstructure:"rabbit"`
}

type Rabbit struct {
	URL            string        `mapstructure:"url"`
	ReconnectBase  time.Duration `mapstructure:"reconnectBase"`  // базовая задержка реконнекта
	ReconnectCap   time.Duration `mapstructure:"reconnectCap"`   // потолок задержки реконнекта
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"` // таймаут на dial/handshake
}

type Routing struct {
	FilePath string `mapstructure:"filePath"`
}

type Sweep struct {
	Schedule      string `mapstructure:"schedule"` // cron-формат, например "0 */5 * * * *"
	Interval      string `mapstructure:"interval"` // либо интервал "@every 1m"
	RequeueLimit  int    `mapstructure:"requeueLimit"`
	SentKeepDays  int    `mapstructure:"sentKeepDays"` // сколько дней храним SENT записи
	PurgeSchedule string `mapstructure:"purgeSchedule"`
	PurgeInterval string `mapstructure:"purgeInterval"`
	// Приоритет: если указан Schedule, используется он, иначе Interval
}

type RelayConfig struct {
	BatchSize   int           `mapstructure:"batchSize"`
	Lease       time.Duration `mapstructure:"lease"`
	PollPeriod  time.Duration `mapstructure:"pollPeriod"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
}

type HTTPClient struct {
	//адрес content-сервиса для подписи вложений
	ContentURL string `mapstructure:"contentURL"`

	//конфиг клиента
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout"`        // TCP коннект
	TLSHandshakeTimeout   time.Duration `mapstructure:"TLSHandshakeTimeout"`   // TLS рукопожатие
	ResponseHeaderTimeout time.Duration `mapstructure:"responseHeaderTimeout"` // ожидание заголовков ответа
	ExpectContinueTimeout time.Duration `mapstructure:"expectContinueTimeout"` // 100-continue

	// Пул соединений
	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int           `mapstructure:"maxConnsPerHost"`
	KeepAlives          bool          `mapstructure:"keepAlives"`

	// Общий таймаут клиента. 0 — контролируем дедлайном через context.
	ClientTimeout time.Duration `mapstructure:"clientTimeout"`

	// Прочее
	UserAgent  string `mapstructure:"userAgent"`
	MaxRetries int    `mapstructure:"maxRetries"`

	// SSL/TLS настройки
	InsecureSkipVerify bool `mapstructure:"insecureSkipVerify"` // отключить проверку SSL сертификатов
}

func NewConfig() (Config, error) {
	viper.AutomaticEnv()
	// Настраиваем замену точек и дефисов на подчеркивания для переменных окружения
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	var conf Config
	err := viper.ReadInConfig() // Find and read the config file
	// Игнорируем ошибку, если файл не найден - используем только переменные окружения
	if err != nil {
		// Если это не ошибка "файл не найден", возвращаем её
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	// unmarshal
	err = viper.Unmarshal(&conf)
	if err != nil {
		return conf, err
	}

	conf.applyDefaults()

	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Relay.BatchSize <= 0 {
		c.Relay.BatchSize = 100
	}
	if c.Relay.PollPeriod <= 0 {
		c.Relay.PollPeriod = time.Second
	}
	if c.Relay.Lease <= 0 {
		c.Relay.Lease = 30 * time.Second
	}
	if c.Relay.MaxAttempts <= 0 {
		c.Relay.MaxAttempts = 10
	}
	if c.Broker.Rabbit.ReconnectBase <= 0 {
		c.Broker.Rabbit.ReconnectBase = 500 * time.Millisecond
	}
	if c.Broker.Rabbit.ReconnectCap <= 0 {
		c.Broker.Rabbit.ReconnectCap = 30 * time.Second
	}
	if c.Broker.Rabbit.ConnectTimeout <= 0 {
		c.Broker.Rabbit.ConnectTimeout = 10 * time.Second
	}
	if c.Sweep.RequeueLimit <= 0 {
		c.Sweep.RequeueLimit = 1000
	}
	if c.Sweep.SentKeepDays <= 0 {
		c.Sweep.SentKeepDays = 7
	}
	if c.Routing.FilePath == "" {
		c.Routing.FilePath = "routes.yaml"
	}
	if c.Server.MetricsPort == "" {
		c.Server.MetricsPort = "9090"
	}
}

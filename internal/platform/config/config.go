package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. It is loaded once at start-up and
// passed by value or read-only pointer afterwards; nothing mutates it.
type Config struct {
	Server   Server        `yaml:"server"`
	Log      Log           `yaml:"log"`
	Registry Registry      `yaml:"registry"`
	SIM      SIM           `yaml:"sim"`
	AUC      AUC           `yaml:"auc"`
	Delivery Delivery      `yaml:"delivery"`
	Audit    Audit         `yaml:"audit"`
	Identity Identity      `yaml:"identity"`
	Auth     Auth          `yaml:"auth"`
	Redis    RedisConfig   `yaml:"redis"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WriteTimeout bounds a whole response. Batch liberation runs AUC
	// delivery once per serial inside the request, so it is long.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	DevMode      bool          `yaml:"dev_mode"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Endpoint is one registry database.
type Endpoint struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Service  string `yaml:"service"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Configured reports whether enough is set to attempt a connection.
func (e Endpoint) Configured() bool {
	return e.Host != "" && e.User != "" && e.Service != ""
}

// DSN renders the endpoint as a postgres URL.
func (e Endpoint) DSN() string {
	port := e.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(e.User, e.Password),
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(port)),
		Path:   "/" + e.Service,
	}
	return u.String()
}

// ReleasePolicy holds the fixed values written by the release mutation.
type ReleasePolicy struct {
	ReservedDealerID int64 `yaml:"reserved_dealer_id"`
	BusinessUnitID   int64 `yaml:"business_unit_id"`
	RecordVersion    int   `yaml:"record_version"`
}

// Queues names the UAT correction and creation queues and their procedures.
type Queues struct {
	CreateTable     string `yaml:"create_table"`
	UpdateTable     string `yaml:"update_table"`
	CreateProcedure string `yaml:"create_procedure"`
	UpdateProcedure string `yaml:"update_procedure"`
}

type Registry struct {
	Driver      string        `yaml:"driver"` // postgres | memory
	Prod        Endpoint      `yaml:"prod"`
	UAT         Endpoint      `yaml:"uat"`
	Policy      ReleasePolicy `yaml:"policy"`
	Queues      Queues        `yaml:"queues"`
	FixturePath string        `yaml:"fixture_path"`
	MaxConns    int32         `yaml:"max_conns"`
}

type SIM struct {
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`
}

type AUC struct {
	DesignatedMediumClass int    `yaml:"designated_medium_class"`
	Extension             string `yaml:"extension"`
}

type SFTPConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	InboxDir       string        `yaml:"inbox_dir"`
	KnownHostsFile string        `yaml:"known_hosts_file"`
	Timeout        time.Duration `yaml:"timeout"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type Delivery struct {
	Driver string     `yaml:"driver"` // sftp | s3 | memory
	SFTP   SFTPConfig `yaml:"sftp"`
	S3     S3Config   `yaml:"s3"`
	// Consecutive failed transfers before deliveries fail fast for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// Identity returns the name that appears in delivered filenames.
func (d Delivery) Identity() string {
	if d.SFTP.User != "" {
		return d.SFTP.User
	}
	return "simrelease"
}

type Audit struct {
	Driver       string   `yaml:"driver"` // memory | postgres | sqlite | kafka
	DSN          string   `yaml:"dsn"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	AsyncBuffer  int      `yaml:"async_buffer"`
}

// RoleMapping binds a directory group to an application role. Order matters:
// the first matching group wins.
type RoleMapping struct {
	Group string `yaml:"group"`
	Role  string `yaml:"role"`
}

type LDAPConfig struct {
	Server     string        `yaml:"server"`
	BaseDN     string        `yaml:"base_dn"`
	SearchBase string        `yaml:"search_base"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Identity struct {
	Driver     string        `yaml:"driver"` // ldap | static
	LDAP       LDAPConfig    `yaml:"ldap"`
	StaticFile string        `yaml:"static_file"`
	Roles      []RoleMapping `yaml:"roles"`
}

type Auth struct {
	SigningKey string        `yaml:"signing_key"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	Issuer     string        `yaml:"issuer"`
}

// RedisConfig holds Redis connection configuration. An empty URL means the
// in-memory revocation list is used.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Token, when set, is required in X-Admin-Token to scrape /metrics.
	Token string `yaml:"token"`
}

// DefaultRoles is the group to role table used when none is configured.
var DefaultRoles = []RoleMapping{
	{Group: "ADM Support 1515 Group", Role: "support1515"},
	{Group: "CRM IT Team", Role: "crm_it_team"},
	{Group: "Digital Factory Group", Role: "digital_factory"},
	{Group: "B2B Activations", Role: "boa_activations"},
	{Group: "RoamingTeam", Role: "roaming_team"},
}

// Default returns a Config populated with development defaults.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second, WriteTimeout: 10 * time.Minute},
		Log:    Log{Level: "info", Format: "json"},
		Registry: Registry{
			Driver: "postgres",
			Policy: ReleasePolicy{ReservedDealerID: 31970747, BusinessUnitID: 2, RecordVersion: 2},
			Queues: Queues{
				CreateTable:     "mediation.sim_to_create",
				UpdateTable:     "mediation.sim_to_update",
				CreateProcedure: "mediation.create_sim_test",
				UpdateProcedure: "mediation.update_sim_test",
			},
			MaxConns: 4,
		},
		SIM: SIM{Prefix: "8921303", Suffix: "F"},
		AUC: AUC{DesignatedMediumClass: 3, Extension: "SPML"},
		Delivery: Delivery{
			Driver:           "sftp",
			SFTP:             SFTPConfig{Port: 22, InboxDir: ".", Timeout: 30 * time.Second},
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Audit:    Audit{Driver: "memory", KafkaTopic: "simrelease.audit", AsyncBuffer: 0},
		Identity: Identity{Driver: "ldap", LDAP: LDAPConfig{Timeout: 10 * time.Second}, Roles: DefaultRoles},
		Auth: Auth{
			SigningKey: "dev-secret-key-change-in-production",
			TokenTTL:   24 * time.Hour,
			Issuer:     "simrelease",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Tracing: TracingConfig{ServiceName: "simrelease"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration from the optional YAML file named by
// SIMRELEASE_CONFIG overlaid with environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("SIMRELEASE_CONFIG"), os.Getenv)
}

// LoadFrom is Load with an explicit file path and variable lookup.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if len(cfg.Identity.Roles) == 0 {
		cfg.Identity.Roles = DefaultRoles
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SIMRELEASE_ADDR", &cfg.Server.Addr)
	duration("SIMRELEASE_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	boolean("DEV_MODE", &cfg.Server.DevMode)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_TOKEN", &cfg.Metrics.Token)

	str("REGISTRY_DRIVER", &cfg.Registry.Driver)
	str("REGISTRY_FIXTURE", &cfg.Registry.FixturePath)
	for _, e := range []struct {
		suffix string
		ep     *Endpoint
	}{{"PROD", &cfg.Registry.Prod}, {"UAT", &cfg.Registry.UAT}} {
		str("DB_HOST_"+e.suffix, &e.ep.Host)
		integer("DB_PORT_"+e.suffix, &e.ep.Port)
		str("DB_SERVICE_"+e.suffix, &e.ep.Service)
		str("DB_USER_"+e.suffix, &e.ep.User)
		str("DB_PASSWORD_"+e.suffix, &e.ep.Password)
	}
	if v := getenv("RESERVED_DEALER_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RESERVED_DEALER_ID: %w", err))
		} else {
			cfg.Registry.Policy.ReservedDealerID = n
		}
	}

	str("SIM_PREFIX", &cfg.SIM.Prefix)
	str("SIM_SUFFIX", &cfg.SIM.Suffix)

	str("DELIVERY_DRIVER", &cfg.Delivery.Driver)
	str("SFTP_HOST", &cfg.Delivery.SFTP.Host)
	integer("SFTP_PORT", &cfg.Delivery.SFTP.Port)
	str("SFTP_USER", &cfg.Delivery.SFTP.User)
	str("SFTP_PASSWORD", &cfg.Delivery.SFTP.Password)
	str("SFTP_INBOX_DIR", &cfg.Delivery.SFTP.InboxDir)
	str("SFTP_KNOWN_HOSTS", &cfg.Delivery.SFTP.KnownHostsFile)
	str("S3_BUCKET", &cfg.Delivery.S3.Bucket)
	str("S3_PREFIX", &cfg.Delivery.S3.Prefix)
	str("S3_REGION", &cfg.Delivery.S3.Region)
	str("S3_ENDPOINT", &cfg.Delivery.S3.Endpoint)
	str("S3_ACCESS_KEY", &cfg.Delivery.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.Delivery.S3.SecretKey)
	boolean("S3_USE_PATH_STYLE", &cfg.Delivery.S3.UsePathStyle)
	integer("DELIVERY_BREAKER_THRESHOLD", &cfg.Delivery.BreakerThreshold)
	duration("DELIVERY_BREAKER_COOLDOWN", &cfg.Delivery.BreakerCooldown)

	str("AUDIT_DRIVER", &cfg.Audit.Driver)
	str("AUDIT_DSN", &cfg.Audit.DSN)
	str("KAFKA_TOPIC", &cfg.Audit.KafkaTopic)
	if v := getenv("KAFKA_BROKERS"); v != "" {
		cfg.Audit.KafkaBrokers = splitList(v)
	}
	integer("AUDIT_ASYNC_BUFFER", &cfg.Audit.AsyncBuffer)

	str("IDENTITY_DRIVER", &cfg.Identity.Driver)
	str("LDAP_SERVER", &cfg.Identity.LDAP.Server)
	str("LDAP_BASE_DN", &cfg.Identity.LDAP.BaseDN)
	str("LDAP_SEARCH_BASE", &cfg.Identity.LDAP.SearchBase)
	str("IDENTITY_STATIC_FILE", &cfg.Identity.StaticFile)

	str("JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	duration("JWT_TTL", &cfg.Auth.TokenTTL)

	str("REDIS_URL", &cfg.Redis.URL)
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every missing or inconsistent value at once.
func (c Config) Validate() error {
	var errs []error
	if c.SIM.Prefix == "" {
		errs = append(errs, errors.New("sim.prefix is required"))
	}
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Registry.Policy.ReservedDealerID == 0 {
		errs = append(errs, errors.New("registry.policy.reserved_dealer_id is required"))
	}

	switch c.Registry.Driver {
	case "memory":
	case "postgres":
		if !c.Registry.Prod.Configured() {
			errs = append(errs, errors.New("registry.prod: DB_HOST_PROD, DB_SERVICE_PROD and DB_USER_PROD are required"))
		}
		if !c.Registry.UAT.Configured() {
			errs = append(errs, errors.New("registry.uat: DB_HOST_UAT, DB_SERVICE_UAT and DB_USER_UAT are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.driver %q is not supported", c.Registry.Driver))
	}

	switch c.Delivery.Driver {
	case "memory":
	case "sftp":
		if c.Delivery.SFTP.Host == "" || c.Delivery.SFTP.User == "" {
			errs = append(errs, errors.New("delivery.sftp: SFTP_HOST and SFTP_USER are required"))
		}
	case "s3":
		if c.Delivery.S3.Bucket == "" {
			errs = append(errs, errors.New("delivery.s3: S3_BUCKET is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("delivery.driver %q is not supported", c.Delivery.Driver))
	}

	switch c.Audit.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Audit.DSN == "" {
			errs = append(errs, fmt.Errorf("audit.dsn is required for driver %s", c.Audit.Driver))
		}
	case "kafka":
		if len(c.Audit.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("audit.kafka_brokers is required for driver kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.driver %q is not supported", c.Audit.Driver))
	}

	switch c.Identity.Driver {
	case "ldap":
		if c.Identity.LDAP.Server == "" || c.Identity.LDAP.BaseDN == "" || c.Identity.LDAP.SearchBase == "" {
			errs = append(errs, errors.New("identity.ldap: LDAP_SERVER, LDAP_BASE_DN and LDAP_SEARCH_BASE are required"))
		}
	case "static":
		if c.Identity.StaticFile == "" {
			errs = append(errs, errors.New("identity.static_file is required for driver static"))
		}
	default:
		errs = append(errs, fmt.Errorf("identity.driver %q is not supported", c.Identity.Driver))
	}

	return errors.Join(errs...)
}

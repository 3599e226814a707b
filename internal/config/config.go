// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/netSkope/vco-log-export/internal/timeutil"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultEndpoint    = "flows"
	DefaultVCO         = "vco99-us.velocloud.net"
	DefaultBasePath    = "/portal/rest/"
	DefaultEdgeID      = 12345
	DefaultLimitFlow   = 204800
	DefaultLimitEvent  = 2048
	DefaultStartHuman  = "2024-02-20 03:04:00"
	DefaultStopHuman   = "2025-02-22 15:04:00"
	DefaultLogLevel    = "INFO"
	DefaultHTTPTimeout = 300
	DefaultConfigFile  = "config.yaml"
	DefaultS3Prefix    = "vco-export"
)

// Config holds all configuration for the export tool.
type Config struct {
	// API
	Endpoint        string // "flows" or "events"
	VCO             string // VCO host name
	BasePath        string
	AuthToken       string
	AuthTokenSecret string // AWS Secrets Manager secret holding the token (optional)
	SSLVerify       bool
	HTTPTimeout     int // seconds, per request

	// Query
	EdgeID       int
	EnterpriseID int
	LimitFlow    int
	LimitEvent   int
	StartHuman   string
	StopHuman    string
	TZOffsetMin  *int // nil: local zone

	// Logging & output
	LogLevel    string
	LogDir      string
	LogStdout   bool
	OutputDir   string
	MetricsFile string // Prometheus textfile, empty to disable

	// AWS (optional artifact upload and token secret)
	S3Bucket           string
	S3Prefix           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	// Run journal (optional MySQL DSN)
	JournalDSN string

	// Derived from StartHuman/StopHuman
	Start       string // RFC3339 nanoseconds
	Stop        string
	StartMillis int64 // epoch milliseconds
	StopMillis  int64
}

// Default returns a config holding only default values.
func Default() *Config {
	return &Config{
		Endpoint:    DefaultEndpoint,
		VCO:         DefaultVCO,
		BasePath:    DefaultBasePath,
		SSLVerify:   true,
		HTTPTimeout: DefaultHTTPTimeout,
		EdgeID:      DefaultEdgeID,
		LimitFlow:   DefaultLimitFlow,
		LimitEvent:  DefaultLimitEvent,
		StartHuman:  DefaultStartHuman,
		StopHuman:   DefaultStopHuman,
		LogLevel:    DefaultLogLevel,
		LogDir:      ".",
		LogStdout:   true,
		OutputDir:   ".",
		S3Prefix:    DefaultS3Prefix,
	}
}

// LoadConfig loads configuration from CLI flags, environment variables, and YAML file.
// Priority: CLI flags > environment variables > YAML file > defaults
func LoadConfig(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("vcoexport", flag.ContinueOnError)
	endpoint := fs.String("endpoint", DefaultEndpoint, "API to export: flows (getEdgeFlowVisibilityMetrics) or events (getEnterpriseEvents)")
	vco := fs.String("vco", DefaultVCO, "VCO host name")
	basePath := fs.String("basepath", DefaultBasePath, "Portal REST base path")
	authToken := fs.String("auth-token", "", "VCO API token")
	authTokenSecret := fs.String("auth-token-secret", "", "AWS Secrets Manager secret holding the VCO API token")
	sslVerify := fs.Bool("ssl-verify", true, "Verify the VCO TLS certificate")
	httpTimeout := fs.Int("http-timeout", DefaultHTTPTimeout, "Per request timeout in seconds")
	edgeID := fs.Int("edge-id", DefaultEdgeID, "Edge ID (flows)")
	enterpriseID := fs.Int("enterprise-id", 0, "Enterprise ID (required)")
	limitFlow := fs.Int("limit-flow", DefaultLimitFlow, "Page size for flows")
	limitEvent := fs.Int("limit-event", DefaultLimitEvent, "Page size for events")
	startHuman := fs.String("start_human", DefaultStartHuman, `Start time (human-readable, e.g. "2024-02-20 03:04:00")`)
	stopHuman := fs.String("stop_human", DefaultStopHuman, `Stop time (human-readable, e.g. "2025-02-22 15:04:00")`)
	tzOffset := fs.Int("tz-offset", 0, "Offset from UTC in minutes for start/stop times (default: local zone)")
	logLevel := fs.String("log-level", DefaultLogLevel, "Log level (DEBUG, INFO, WARNING, ERROR)")
	logDir := fs.String("log-dir", ".", "Directory for the log file")
	logStdout := fs.Bool("log-stdout", true, "Also log to stdout")
	outputDir := fs.String("output-dir", ".", "Directory for the JSON output file")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this textfile at the end of the run")
	s3Bucket := fs.String("s3-bucket", "", "Upload the output file to this S3 bucket")
	s3Prefix := fs.String("s3-prefix", DefaultS3Prefix, "S3 key prefix")
	awsRegion := fs.String("aws-region", "", "AWS region for S3 and Secrets Manager")
	awsAccessKeyID := fs.String("aws-access-key-id", "", "AWS access key ID (default: SDK credential chain)")
	awsSecretAccessKey := fs.String("aws-secret-access-key", "", "AWS secret access key")
	awsSessionToken := fs.String("aws-session-token", "", "AWS session token")
	journalDSN := fs.String("journal-dsn", "", "MySQL DSN of the run journal (optional)")
	configFile := fs.String("config-file", DefaultConfigFile, "Config file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Load from YAML file if it exists
	path := *configFile
	if !set["config-file"] {
		if val := os.Getenv("CONFIG_FILE"); val != "" {
			path = val
		}
	}
	if path != "" {
		if err := loadFromYAML(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	// Override with CLI flags (highest priority)
	if set["endpoint"] {
		cfg.Endpoint = *endpoint
	}
	if set["vco"] {
		cfg.VCO = *vco
	}
	if set["basepath"] {
		cfg.BasePath = *basePath
	}
	if set["auth-token"] {
		cfg.AuthToken = *authToken
	}
	if set["auth-token-secret"] {
		cfg.AuthTokenSecret = *authTokenSecret
	}
	if set["ssl-verify"] {
		cfg.SSLVerify = *sslVerify
	}
	if set["http-timeout"] {
		cfg.HTTPTimeout = *httpTimeout
	}
	if set["edge-id"] {
		cfg.EdgeID = *edgeID
	}
	if set["enterprise-id"] {
		cfg.EnterpriseID = *enterpriseID
	}
	if set["limit-flow"] {
		cfg.LimitFlow = *limitFlow
	}
	if set["limit-event"] {
		cfg.LimitEvent = *limitEvent
	}
	if set["start_human"] {
		cfg.StartHuman = *startHuman
	}
	if set["stop_human"] {
		cfg.StopHuman = *stopHuman
	}
	if set["tz-offset"] {
		cfg.TZOffsetMin = tzOffset
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["log-dir"] {
		cfg.LogDir = *logDir
	}
	if set["log-stdout"] {
		cfg.LogStdout = *logStdout
	}
	if set["output-dir"] {
		cfg.OutputDir = *outputDir
	}
	if set["metrics-file"] {
		cfg.MetricsFile = *metricsFile
	}
	if set["s3-bucket"] {
		cfg.S3Bucket = *s3Bucket
	}
	if set["s3-prefix"] {
		cfg.S3Prefix = *s3Prefix
	}
	if set["aws-region"] {
		cfg.AWSRegion = *awsRegion
	}
	if set["aws-access-key-id"] {
		cfg.AWSAccessKeyID = *awsAccessKeyID
	}
	if set["aws-secret-access-key"] {
		cfg.AWSSecretAccessKey = *awsSecretAccessKey
	}
	if set["aws-session-token"] {
		cfg.AWSSessionToken = *awsSessionToken
	}
	if set["journal-dsn"] {
		cfg.JournalDSN = *journalDSN
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveInterval(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	c.Endpoint = strings.ToLower(strings.TrimSpace(c.Endpoint))
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))

	if c.Endpoint != "flows" && c.Endpoint != "events" {
		return fmt.Errorf("endpoint must be flows or events, got %q", c.Endpoint)
	}
	if c.VCO == "" {
		return errors.New("vco is required")
	}
	if c.EnterpriseID <= 0 {
		return errors.New("enterprise-id is required")
	}
	if c.AuthToken == "" && c.AuthTokenSecret == "" {
		return errors.New("auth-token or auth-token-secret is required")
	}
	if c.AuthTokenSecret != "" && c.AuthToken == "" && c.AWSRegion == "" {
		return errors.New("aws-region is required when auth-token-secret is set")
	}
	if c.Endpoint == "flows" && c.LimitFlow <= 0 {
		return fmt.Errorf("limit-flow must be positive, got %d", c.LimitFlow)
	}
	if c.Endpoint == "events" && c.LimitEvent <= 0 {
		return fmt.Errorf("limit-event must be positive, got %d", c.LimitEvent)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http-timeout must not be negative, got %d", c.HTTPTimeout)
	}
	if c.S3Bucket != "" && c.AWSRegion == "" {
		return errors.New("aws-region is required when s3-bucket is set")
	}
	return nil
}

// resolveInterval derives the wire timestamps of both endpoints from the human times.
func (c *Config) resolveInterval() error {
	var err error
	if c.Start, err = timeutil.ToRFC3339Nano(c.StartHuman, c.TZOffsetMin); err != nil {
		return fmt.Errorf("start_human: %w", err)
	}
	if c.Stop, err = timeutil.ToRFC3339Nano(c.StopHuman, c.TZOffsetMin); err != nil {
		return fmt.Errorf("stop_human: %w", err)
	}
	if c.StartMillis, err = timeutil.ToUnixMillis(c.StartHuman, c.TZOffsetMin); err != nil {
		return fmt.Errorf("start_human: %w", err)
	}
	if c.StopMillis, err = timeutil.ToUnixMillis(c.StopHuman, c.TZOffsetMin); err != nil {
		return fmt.Errorf("stop_human: %w", err)
	}
	if c.StopMillis < c.StartMillis {
		return fmt.Errorf("stop_human %q is before start_human %q", c.StopHuman, c.StartHuman)
	}
	return nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(cfg *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}

	var yamlCfg struct {
		Endpoint        string `yaml:"endpoint"`
		VCO             string `yaml:"vco"`
		BasePath        string `yaml:"basepath"`
		AuthToken       string `yaml:"auth_token"`
		AuthTokenSecret string `yaml:"auth_token_secret"`
		SSLVerify       *bool  `yaml:"ssl_verify"`
		HTTPTimeout     int    `yaml:"http_timeout"`
		EdgeID          int    `yaml:"edge_id"`
		EnterpriseID    int    `yaml:"enterprise_id"`
		LimitFlow       int    `yaml:"limit_flow"`
		LimitEvent      int    `yaml:"limit_event"`
		StartHuman      string `yaml:"start_human"`
		StopHuman       string `yaml:"stop_human"`
		TZOffsetMin     *int   `yaml:"tz_offset_min"`
		LogLevel        string `yaml:"log_level"`
		LogDir          string `yaml:"log_dir"`
		LogStdout       *bool  `yaml:"log_stdout"`
		OutputDir       string `yaml:"output_dir"`
		MetricsFile     string `yaml:"metrics_file"`
		S3Bucket        string `yaml:"s3_bucket"`
		S3Prefix        string `yaml:"s3_prefix"`
		AWSRegion       string `yaml:"aws_region"`
		JournalDSN      string `yaml:"journal_dsn"`
	}

	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return err
	}

	if yamlCfg.Endpoint != "" {
		cfg.Endpoint = yamlCfg.Endpoint
	}
	if yamlCfg.VCO != "" {
		cfg.VCO = yamlCfg.VCO
	}
	if yamlCfg.BasePath != "" {
		cfg.BasePath = yamlCfg.BasePath
	}
	if yamlCfg.AuthToken != "" {
		cfg.AuthToken = yamlCfg.AuthToken
	}
	if yamlCfg.AuthTokenSecret != "" {
		cfg.AuthTokenSecret = yamlCfg.AuthTokenSecret
	}
	if yamlCfg.SSLVerify != nil {
		cfg.SSLVerify = *yamlCfg.SSLVerify
	}
	if yamlCfg.HTTPTimeout > 0 {
		cfg.HTTPTimeout = yamlCfg.HTTPTimeout
	}
	if yamlCfg.EdgeID > 0 {
		cfg.EdgeID = yamlCfg.EdgeID
	}
	if yamlCfg.EnterpriseID > 0 {
		cfg.EnterpriseID = yamlCfg.EnterpriseID
	}
	if yamlCfg.LimitFlow > 0 {
		cfg.LimitFlow = yamlCfg.LimitFlow
	}
	if yamlCfg.LimitEvent > 0 {
		cfg.LimitEvent = yamlCfg.LimitEvent
	}
	if yamlCfg.StartHuman != "" {
		cfg.StartHuman = yamlCfg.StartHuman
	}
	if yamlCfg.StopHuman != "" {
		cfg.StopHuman = yamlCfg.StopHuman
	}
	if yamlCfg.TZOffsetMin != nil {
		cfg.TZOffsetMin = yamlCfg.TZOffsetMin
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.LogStdout != nil {
		cfg.LogStdout = *yamlCfg.LogStdout
	}
	if yamlCfg.OutputDir != "" {
		cfg.OutputDir = yamlCfg.OutputDir
	}
	if yamlCfg.MetricsFile != "" {
		cfg.MetricsFile = yamlCfg.MetricsFile
	}
	if yamlCfg.S3Bucket != "" {
		cfg.S3Bucket = yamlCfg.S3Bucket
	}
	if yamlCfg.S3Prefix != "" {
		cfg.S3Prefix = yamlCfg.S3Prefix
	}
	if yamlCfg.AWSRegion != "" {
		cfg.AWSRegion = yamlCfg.AWSRegion
	}
	if yamlCfg.JournalDSN != "" {
		cfg.JournalDSN = yamlCfg.JournalDSN
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
// Variable names are shared with the existing VCO collection scripts.
func loadFromEnv(cfg *Config) error {
	if val := os.Getenv("ENDPOINT"); val != "" {
		cfg.Endpoint = val
	}
	if val := os.Getenv("VCO"); val != "" {
		cfg.VCO = val
	}
	if val := os.Getenv("BASEPATH"); val != "" {
		cfg.BasePath = val
	}
	if val := os.Getenv("AUTHTOKEN"); val != "" {
		cfg.AuthToken = val
	}
	if val := os.Getenv("AUTHTOKEN_SECRET"); val != "" {
		cfg.AuthTokenSecret = val
	}
	if val := os.Getenv("SSL_VERIFY"); val != "" {
		cfg.SSLVerify = ParseBool(val)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("LOG_DIR"); val != "" {
		cfg.LogDir = val
	}
	if val := os.Getenv("OUTPUT_DIR"); val != "" {
		cfg.OutputDir = val
	}
	if val := os.Getenv("METRICS_FILE"); val != "" {
		cfg.MetricsFile = val
	}
	if val := os.Getenv("START_HUMAN"); val != "" {
		cfg.StartHuman = val
	}
	if val := os.Getenv("STOP_HUMAN"); val != "" {
		cfg.StopHuman = val
	}
	if val := os.Getenv("S3_BUCKET"); val != "" {
		cfg.S3Bucket = val
	}
	if val := os.Getenv("S3_PREFIX"); val != "" {
		cfg.S3Prefix = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.AWSRegion = val
	}
	if val := os.Getenv("JOURNAL_DSN"); val != "" {
		cfg.JournalDSN = val
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"EDGEID", &cfg.EdgeID},
		{"ENTERPRISEID", &cfg.EnterpriseID},
		{"LIMIT_FLOW", &cfg.LimitFlow},
		{"LIMIT_EVENT", &cfg.LimitEvent},
	}
	for _, e := range ints {
		val := os.Getenv(e.env)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.env, val, err)
		}
		*e.dst = n
	}

	if val := os.Getenv("TZ_OFFSET_MIN"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid TZ_OFFSET_MIN %q: %w", val, err)
		}
		cfg.TZOffsetMin = &n
	}

	return nil
}

// ParseBool accepts 1, true and yes (any case) as true; anything else is false.
func ParseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

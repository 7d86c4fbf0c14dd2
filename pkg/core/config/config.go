//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the access engine
// using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the ACE_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the engine looks for ace-config.yaml in the current directory.
// Override the location using environment variables:
//
//	ACE_CONFIG_PATH=/etc/accessengine
//	ACE_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	org:
//	  tier: 3
//	grants:
//	  default_days: 7
//	  max_days: 30
//	  cache: redis
//	  sweep: "@every 5m"
//	  reasons:
//	    - code: care-coordination
//	      label: Care coordination
//	      active: true
//	store:
//	  driver: postgres
//	  dsn: postgres://ace@localhost/ace
//	audit:
//	  sink: amqp
//	  env:
//	    pod: HOSTNAME
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the ACE_
// prefix. Dots in key names become underscores:
//
//	ACE_LOG_LEVEL=.:debug
//	ACE_ORG_TIER=2
//	ACE_STORE_DSN=postgres://...
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all access engine environment variables.
	// For example, the key "log.level" becomes ACE_LOG_LEVEL.
	EnvVarPrefix string = "ACE"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "ACE_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "ACE_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "ace-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// MockEnabled when set to true causes the engine to use the in-memory
	// backend regardless of any backend configured via [options.WithBackend].
	MockEnabled string = "mock.enabled"

	// MatrixPath names a permission matrix document.  Empty selects the
	// built-in matrix.
	MatrixPath string = "matrix.path"

	// FieldsPath names a field catalog document.  Empty selects the built-in
	// catalog.
	FieldsPath string = "fields.path"

	// OrgTier is the tier used when no settings have been stored yet.
	OrgTier string = "org.tier"

	GrantDefaultDays string = "grants.default_days"
	GrantMaxDays     string = "grants.max_days"

	// GrantReasons is the initial reason code list.
	GrantReasons string = "grants.reasons"

	// GrantCache selects the active-grant cache: none, memory or redis.
	GrantCache string = "grants.cache"

	// GrantSweep is the cron spec of the cache sweeper.  Empty disables it.
	GrantSweep string = "grants.sweep"

	RedisAddr     string = "redis.addr"
	RedisPassword string = "redis.password"
	RedisDB       string = "redis.db"

	// StoreDriver selects the persistent store: memory or postgres.
	StoreDriver string = "store.driver"
	StoreDSN    string = "store.dsn"

	// DirectoryPath names a YAML directory of units, consent scopes,
	// assignments and entity membership.
	DirectoryPath string = "directory.path"

	// AuditEnv defines a mapping from audit metadata keys to environment
	// variable names. The values of the specified environment variables are
	// included in every audit event.
	//
	// Example config:
	//
	//	audit:
	//	  env:
	//	    pod: HOSTNAME
	//	    region: AWS_REGION
	AuditEnv string = "audit.env"

	// AuditK8sPodinfo is the directory of the Kubernetes Downward API
	// volume.  Pod labels and annotations found there are added to audit
	// metadata.
	AuditK8sPodinfo string = "audit.k8s.podinfo"

	// AuditSink selects where audit events go: stdout, amqp or null.
	AuditSink string = "audit.sink"

	AuditAMQPURI      string = "audit.amqp.uri"
	AuditAMQPExchange string = "audit.amqp.exchange"

	// EnvoyTrustTierHeader lets the x-ace-tier header of an Envoy check
	// request choose the tier.  Off by default: the header travels with the
	// client request and would let a caller relax enforcement.
	EnvoyTrustTierHeader string = "envoy.trust_tier_header"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance for the engine.
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper
	logger  = logging.GetLogger("accessengine.config")
)

// DefaultReasons is the reason list offered when none is configured.
var DefaultReasons = []model.ReasonCode{
	{Code: "care-coordination", Label: "Care coordination", Active: true},
	{Code: "safety-concern", Label: "Safety concern", Active: true},
	{Code: "supervisor-review", Label: "Supervisor review", Active: true},
	{Code: "legal-request", Label: "Legal request", Active: true},
}

// Init initializes the configuration system without loading config files.
//
// This function is safe to call multiple times; subsequent calls are no-ops.
func Init() {
	once.Do(func() {
		doInitialize()
	})
}

func getConfigPath() string {
	configPath, ok := os.LookupEnv(ConfigPathEnv)
	if ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	configName, ok := os.LookupEnv(ConfigFileNameEnv)
	if ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// default is './ace-config.yaml' but can be overridden with $(ACE_CONFIG_PATH)/$(ACE_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// keys such as 'log.level' become 'ACE_LOG_LEVEL'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(OrgTier, int(model.Tier3))
	VConfig.SetDefault(GrantDefaultDays, model.DefaultGrantDays)
	VConfig.SetDefault(GrantMaxDays, model.DefaultMaxDays)
	VConfig.SetDefault(GrantCache, "memory")
	VConfig.SetDefault(GrantSweep, "@every 5m")
	VConfig.SetDefault(RedisAddr, "localhost:6379")
	VConfig.SetDefault(RedisDB, 0)
	VConfig.SetDefault(StoreDriver, "memory")
	VConfig.SetDefault(AuditSink, "stdout")
	VConfig.SetDefault(AuditK8sPodinfo, "/etc/podinfo")
	VConfig.SetDefault(AuditAMQPExchange, "accessengine.audit")
	VConfig.SetDefault(EnvoyTrustTierHeader, false)
}

// Load initializes configuration and loads settings from files and environment.
//
// This function is safe to call concurrently from multiple goroutines.
// Subsequent calls after the first successful load are no-ops that return nil.
//
// Returns an error if log level configuration is invalid.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		earlyLoglevel := os.Getenv("ACE_LOG_LEVEL")
		if earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		err := VConfig.ReadInConfig()
		if err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: This function is intended for testing only.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	resetK8sCache()
	Init()
	// ignore any reset errors
	_ = Load()
}

// OrgSettings builds the initial organisation settings from configuration.
// They apply until an administrator stores settings of their own.
func OrgSettings() (model.OrgSettings, error) {
	t, err := model.ParseTier(VConfig.GetString(OrgTier))
	if err != nil {
		return model.OrgSettings{}, err
	}

	reasons := DefaultReasons
	if VConfig.IsSet(GrantReasons) {
		var configured []model.ReasonCode
		if err := VConfig.UnmarshalKey(GrantReasons, &configured); err != nil {
			return model.OrgSettings{}, err
		}
		reasons = configured
	}

	return model.OrgSettings{
		Tier:             t,
		DefaultGrantDays: VConfig.GetInt(GrantDefaultDays),
		MaxGrantDays:     VConfig.GetInt(GrantMaxDays),
		Reasons:          reasons,
	}.WithDefaults(), nil
}

// GetAuditEnv returns resolved audit environment metadata for audit events.
//
// Configuration format:
//
//	audit:
//	  env:
//	    pod: HOSTNAME
//	    region: AWS_REGION
//
// With HOSTNAME=pod-123 and AWS_REGION=us-east-1, this returns:
//
//	{"pod": "pod-123", "region": "us-east-1"}
//
// Environment variables that are not set will have empty string values in the
// result.  When running in Kubernetes with a Downward API volume, pod labels
// and annotations are added under "k8s.label." and "k8s.annotation." keys.
func GetAuditEnv() map[string]string {
	result := make(map[string]string)

	for key, envVarName := range VConfig.GetStringMapString(AuditEnv) {
		result[key] = os.Getenv(envVarName)
	}
	for key, value := range getK8sLabels() {
		result["k8s.label."+key] = value
	}
	for key, value := range getK8sAnnotations() {
		result["k8s.annotation."+key] = value
	}

	return result
}

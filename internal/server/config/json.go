package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authgate/internal/flagx"
	"github.com/dmitrijs2005/authgate/internal/timex"
)

// JsonRateLimit is the JSON shape of one rate limit override.
type JsonRateLimit struct {
	Requests int            `json:"requests"`
	Window   timex.Duration `json:"window"`
	Burst    int            `json:"burst"`
}

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds. Pointer fields tell
// "absent" apart from "false"/"0".
//
// Only fields present in the file override the defaults.
type JsonConfig struct {
	HTTPAddr       string `json:"http_addr"`
	MetricsAddr    string `json:"metrics_addr"`
	HealthAddrGRPC string `json:"health_addr_grpc"`
	LogLevel       string `json:"log_level"`

	StoreBackend string `json:"store_backend"`
	DataDir      string `json:"data_dir"`
	DatabaseDSN  string `json:"database_dsn"`

	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	MFACodeValidityDuration      timex.Duration `json:"mfa_code_validity_duration"`
	ResetCodeValidityDuration    timex.Duration `json:"reset_code_validity_duration"`
	BcryptCost                   int            `json:"bcrypt_cost"`

	MasterAdminEmail    string `json:"master_admin_email"`
	MasterAdminPassword string `json:"master_admin_password"`
	MasterAdminMFA      *bool  `json:"master_admin_mfa"`
	LoginBaseURL        string `json:"login_base_url"`

	IPWhitelistEnabled *bool    `json:"ip_whitelist_enabled"`
	AllowedIPs         []string `json:"allowed_ips"`
	TrustedProxies     []string `json:"trusted_proxies"`

	ThreatAttackThreshold int            `json:"threat_attack_threshold"`
	ThreatBlockDuration   timex.Duration `json:"threat_block_duration"`

	AdaptiveBlocking            *bool                    `json:"adaptive_blocking"`
	RateLimitViolationThreshold int                      `json:"rate_limit_violation_threshold"`
	RateLimitBlockBase          timex.Duration           `json:"rate_limit_block_base"`
	RateLimitBlockMax           timex.Duration           `json:"rate_limit_block_max"`
	RateLimits                  map[string]JsonRateLimit `json:"rate_limits"`

	ArchiveEnabled *bool  `json:"archive_enabled"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags, or from
// AUTHGATE_CONFIG. If none is set, nothing is loaded. If the file cannot be read or contains invalid
// JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.HealthAddrGRPC, c.HealthAddrGRPC)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DataDir, c.DataDir)
	setString(&config.DatabaseDSN, c.DatabaseDSN)

	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.MFACodeValidityDuration, c.MFACodeValidityDuration)
	setDuration(&config.ResetCodeValidityDuration, c.ResetCodeValidityDuration)
	setInt(&config.BcryptCost, c.BcryptCost)

	setString(&config.MasterAdminEmail, c.MasterAdminEmail)
	setString(&config.MasterAdminPassword, c.MasterAdminPassword)
	setBool(&config.MasterAdminMFA, c.MasterAdminMFA)
	setString(&config.LoginBaseURL, c.LoginBaseURL)

	setBool(&config.IPWhitelistEnabled, c.IPWhitelistEnabled)
	if c.AllowedIPs != nil {
		config.AllowedIPs = c.AllowedIPs
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}

	setInt(&config.ThreatAttackThreshold, c.ThreatAttackThreshold)
	setDuration(&config.ThreatBlockDuration, c.ThreatBlockDuration)

	setBool(&config.AdaptiveBlocking, c.AdaptiveBlocking)
	setInt(&config.RateLimitViolationThreshold, c.RateLimitViolationThreshold)
	setDuration(&config.RateLimitBlockBase, c.RateLimitBlockBase)
	setDuration(&config.RateLimitBlockMax, c.RateLimitBlockMax)
	if len(c.RateLimits) > 0 {
		config.RateLimits = make(map[string]RateLimitRule, len(c.RateLimits))
		for endpoint, r := range c.RateLimits {
			config.RateLimits[endpoint] = RateLimitRule{Requests: r.Requests, Window: r.Window.Duration, Burst: r.Burst}
		}
	}

	setBool(&config.ArchiveEnabled, c.ArchiveEnabled)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
)

var lookupEnv = os.LookupEnv

// parseEnv overlays settings that deployments usually inject through the
// environment. Secrets belong here rather than in a JSON file.
//
//	JWT_SECRET_KEY / AUTHGATE_SECRET_KEY   signing secret (the latter wins)
//	ENABLE_IP_WHITELIST                    "true"/"1" enables the whitelist
//	ALLOWED_IPS                            comma-separated IPs or CIDRs
//	AUTHGATE_HTTP_ADDR                     public listener
//	AUTHGATE_DATABASE_DSN                  PostgreSQL DSN
//	AUTHGATE_STORE_BACKEND                 "file" or "postgres"
//	AUTHGATE_MASTER_ADMIN_EMAIL            bootstrap account
//	AUTHGATE_MASTER_ADMIN_PASSWORD         bootstrap password
//	AUTHGATE_S3_ROOT_USER / _PASSWORD      archive credentials
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
			}
		}
	}

	str(&config.SecretKey, "JWT_SECRET_KEY", "AUTHGATE_SECRET_KEY")
	str(&config.HTTPAddr, "AUTHGATE_HTTP_ADDR")
	str(&config.DatabaseDSN, "AUTHGATE_DATABASE_DSN")
	str(&config.StoreBackend, "AUTHGATE_STORE_BACKEND")
	str(&config.MasterAdminEmail, "AUTHGATE_MASTER_ADMIN_EMAIL")
	str(&config.MasterAdminPassword, "AUTHGATE_MASTER_ADMIN_PASSWORD")
	str(&config.S3RootUser, "AUTHGATE_S3_ROOT_USER")
	str(&config.S3RootPassword, "AUTHGATE_S3_ROOT_PASSWORD")

	if v, ok := lookup("ENABLE_IP_WHITELIST"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			config.IPWhitelistEnabled = b
		}
	}
	if v, ok := lookup("ALLOWED_IPS"); ok {
		config.AllowedIPs = splitList(v)
	}
}

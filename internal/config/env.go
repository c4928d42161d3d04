package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Environment variables that override the file.
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvDatabaseURL = "DATABASE_URL"
	EnvAdminIDs    = "ADMIN_IDS"
	EnvSentryDSN   = "SENTRY_DSN"
	EnvNATSURL     = "NATS_URL"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides secrets and endpoints from the environment. A
// DATABASE_URL without an explicit driver selects postgres.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if v, ok := lookupNonEmpty(lookup, EnvBotToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvDatabaseURL); ok {
		cfg.Storage.DSN = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v, ok := lookupNonEmpty(lookup, EnvAdminIDs); ok {
		ids, err := ParseAdminIDs(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAdminIDs, err)
		}
		cfg.Telegram.AdminIDs = ids
	}
	if v, ok := lookupNonEmpty(lookup, EnvSentryDSN); ok {
		cfg.Sentry.DSN = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvNATSURL); ok {
		cfg.Events.NATSURL = v
	}
	return nil
}

func lookupNonEmpty(lookup LookupFunc, key string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// ParseAdminIDs accepts a single id ("42"), a JSON list ("[1, 2]") or a
// comma/space separated list ("1,2 3"). Empty input yields no ids.
func ParseAdminIDs(raw string) ([]int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var ids []int64
		if err := json.Unmarshal([]byte(s), &ids); err == nil {
			return ids, nil
		}
		s = strings.Trim(s, "[]")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		if f == "" {
			continue
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// DefaultEnvPrefix is the prefix ApplyEnv callers use unless told otherwise.
const DefaultEnvPrefix = "DATABASE_"

var trueValues = map[string]struct{}{"true": {}, "1": {}, "yes": {}, "on": {}}

// ApplyEnv sets DatabaseURL from prefixed environment variables.
//
// prefix+"DSN" wins over everything else. Otherwise prefix+"HOST", "PORT",
// "NAME", "USER" and "PASSWORD" are combined into a postgres URL, with the
// optional "SCHEMA" and "READONLY" turned into search_path and
// default_transaction_read_only connection options. When neither DSN nor
// HOST is set the config is left untouched.
func (c *Config) ApplyEnv(prefix string) error {
	if dsn, ok := lookupEnv(prefix + "DSN"); ok {
		c.DatabaseURL = dsn
		return nil
	}
	if _, ok := lookupEnv(prefix + "HOST"); !ok {
		return nil
	}

	values := map[string]string{}
	var missing []string
	for _, key := range []string{"HOST", "PORT", "NAME", "USER", "PASSWORD"} {
		v, ok := lookupEnv(prefix + key)
		if !ok {
			missing = append(missing, prefix+key)
			continue
		}
		values[key] = v
	}
	if len(missing) > 0 {
		return fmt.Errorf("database: missing environment variables %s", strings.Join(missing, ", "))
	}

	schema, _ := lookupEnv(prefix + "SCHEMA")
	readonly, _ := lookupEnv(prefix + "READONLY")

	c.DatabaseDriver = "postgres"
	c.DatabaseURL = postgresURL(values["HOST"], values["PORT"], values["NAME"], values["USER"], values["PASSWORD"], schema, parseBool(readonly))
	return nil
}

func postgresURL(host, port, name, user, password, schema string, readonly bool) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	var options []string
	if schema != "" {
		options = append(options, "-c search_path="+schema)
	}
	if readonly {
		options = append(options, "-c default_transaction_read_only=on")
	}
	if len(options) > 0 {
		u.RawQuery = url.Values{"options": {strings.Join(options, " ")}}.Encode()
	}
	return u.String()
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.Trim(v, `"`), true
}

func parseBool(v string) bool {
	_, ok := trueValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

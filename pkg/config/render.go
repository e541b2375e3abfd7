package config

import (
	"fmt"
	"net/url"
	"regexp"

	"gopkg.in/yaml.v3"
)

const redacted = "REDACTED"

// keyword/value DSNs: "host=db password=secret" or "server=db;password=secret"
var passwordParam = regexp.MustCompile(`(?i)\b(password|pwd)\s*=\s*('[^']*'|[^\s;]*)`)

// RedactDSN hides the password of a connection string.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}

	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
		q := u.Query()
		for _, k := range []string{"password", "pwd"} {
			if q.Has(k) {
				q.Set(k, redacted)
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	return passwordParam.ReplaceAllString(dsn, "${1}="+redacted)
}

// Render returns the configuration as YAML with secrets redacted.
func (c *Config) Render() ([]byte, error) {
	out := *c
	out.Sink.DSN = RedactDSN(c.Sink.DSN)
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

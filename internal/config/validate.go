package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Validate checks that the settings a command depends on are present.
// mode is the command family: "store", "serve", "ingest", "digest", "schedule".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (sqlite file path)")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (sqlite, postgres)", c.Store.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
		}
	case "ingest":
		if c.Fetch.TimeoutSecs <= 0 {
			errs = append(errs, "fetch.timeout_secs must be > 0")
		}
		if c.Ingest.ArchivePayload && c.Archive.Bucket == "" {
			errs = append(errs, "archive.bucket is required when ingest.archive_payload is set")
		}
	case "digest":
		if c.Digest.TopN <= 0 {
			errs = append(errs, "digest.top_n must be > 0")
		}
		for _, sink := range c.Digest.Sinks {
			switch sink {
			case "kafka":
				if len(c.Kafka.Brokers) == 0 {
					errs = append(errs, "kafka.brokers is required for the kafka digest sink")
				}
			case "webhook":
				if c.Digest.WebhookURL == "" {
					errs = append(errs, "digest.webhook_url is required for the webhook digest sink")
				}
			case "stdout":
			default:
				errs = append(errs, fmt.Sprintf("unknown digest sink %q", sink))
			}
		}
	case "schedule":
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("schedule.timezone %q: %v", c.Schedule.Timezone, err))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the scheduling timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

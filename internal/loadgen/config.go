// Package loadgen drives a running civicflow instance with synthetic reports,
// walks a share of them through the lifecycle and checks the resulting points.
package loadgen

import (
	"runtime"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Reports      int           // Number of reports to submit
	Users        int           // Number of distinct submitters
	Workers      int           // Concurrent requests in flight
	ResolveRatio float64       // Share of reports acknowledged and resolved, 0..1
	Timeout      time.Duration // HTTP request timeout
	Settle       time.Duration // How long to wait for detached rewards to land
	AdminID      string        // Actor used for acknowledgements
}

// DefaultConfig returns the settings used when flags are not given.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:9080",
		Reports:      200,
		Users:        20,
		Workers:      runtime.NumCPU() * 2,
		ResolveRatio: 0.5,
		Timeout:      10 * time.Second,
		Settle:       30 * time.Second,
		AdminID:      "loadgen-admin",
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Reports < 1 {
		c.Reports = d.Reports
	}
	if c.Users < 1 {
		c.Users = d.Users
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.ResolveRatio < 0 {
		c.ResolveRatio = 0
	}
	if c.ResolveRatio > 1 {
		c.ResolveRatio = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Settle <= 0 {
		c.Settle = d.Settle
	}
	if c.AdminID == "" {
		c.AdminID = d.AdminID
	}
}

// Stats holds run statistics.
type Stats struct {
	Submitted    int64
	Upvoted      int64
	Acknowledged int64
	Resolved     int64
	Failed       int64
	Verified     int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ResilienceConfig centralizes the circuit breaker settings applied to every upstream host
type ResilienceConfig struct {
	CBFailureThreshold int           `yaml:"cb_failure_threshold"`  // failures before opening the circuit
	CBTimeout          time.Duration `yaml:"cb_timeout"`            // time before probing a tripped host
	CBHalfOpenRequests int           `yaml:"cb_half_open_requests"` // probes allowed in half-open state
}

// DefaultResilienceConfig returns a ResilienceConfig with sensible defaults
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		CBFailureThreshold: 5,
		CBTimeout:          30 * time.Second,
		CBHalfOpenRequests: 1,
	}
}

func (c *ResilienceConfig) applyEnv(p *envParser) {
	p.parseInt("CB_FAILURE_THRESHOLD", &c.CBFailureThreshold)
	p.parseDuration("CB_TIMEOUT", &c.CBTimeout)
	p.parseInt("CB_HALF_OPEN_REQUESTS", &c.CBHalfOpenRequests)
}

// Validate performs additional validation on the configuration
func (c *ResilienceConfig) Validate() error {
	var errors []string

	if c.CBFailureThreshold <= 0 {
		errors = append(errors, "CBFailureThreshold must be positive")
	}
	if c.CBTimeout <= 0 {
		errors = append(errors, "CBTimeout must be positive")
	}
	if c.CBHalfOpenRequests <= 0 {
		errors = append(errors, "CBHalfOpenRequests must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// envParser is a helper for parsing environment variables. It collects every
// problem so they can be reported together.
type envParser struct {
	errors []string
}

func (p *envParser) err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(p.errors, "\n  - "))
}

func (p *envParser) parseString(envName string, target *string) {
	if val := os.Getenv(envName); val != "" {
		*target = val
	}
}

// parseDuration parses a duration environment variable, ensuring it's not negative
func (p *envParser) parseDuration(envName string, target *time.Duration) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: invalid duration format (use '30s', '1m', etc.)", envName))
		return
	}
	if duration < 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must not be negative", envName))
		return
	}

	*target = duration
}

// parseInt parses an integer environment variable, ensuring it's positive
func (p *envParser) parseInt(envName string, target *int) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a valid integer", envName))
		return
	}
	if intVal <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = intVal
}

func (p *envParser) parseFloat(envName string, target *float64) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a positive number", envName))
		return
	}

	*target = f
}

func (p *envParser) parseBool(envName string, target *bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be true or false", envName))
		return
	}

	*target = b
}

// parseByteSize parses a byte size environment variable, ensuring it's positive
func (p *envParser) parseByteSize(envName string, target *int) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	size, err := parseByteSize(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: %v", envName, err))
		return
	}
	if size <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = size
}

// parseEnum parses an enum environment variable from a set of valid lowercase values
func (p *envParser) parseEnum(envName string, target *string, validValues map[string]bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	normalized := strings.ToLower(val)
	if !validValues[normalized] {
		validList := make([]string, 0, len(validValues))
		for k := range validValues {
			validList = append(validList, k)
		}
		sort.Strings(validList)
		p.errors = append(p.errors, fmt.Sprintf("%s must be one of: %s", envName, strings.Join(validList, ", ")))
		return
	}

	*target = normalized
}

// parseByteSize parses a byte size string (e.g., "2MB", "1024", "1.5GB")
// Supports: bytes (no suffix), KB, MB, GB
func parseByteSize(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))

	if val, err := strconv.Atoi(s); err == nil {
		return val, nil
	}

	// longer suffixes first so "B" does not match "MB"
	suffixes := []struct {
		suffix     string
		multiplier int
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, item := range suffixes {
		if !strings.HasSuffix(s, item.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(s, item.suffix))

		if val, err := strconv.Atoi(numStr); err == nil {
			if val < 0 {
				return 0, fmt.Errorf("negative values are not allowed")
			}
			return val * item.multiplier, nil
		}
		if val, err := strconv.ParseFloat(numStr, 64); err == nil {
			if val < 0 {
				return 0, fmt.Errorf("negative values are not allowed")
			}
			return int(val * float64(item.multiplier)), nil
		}
		return 0, fmt.Errorf("invalid numeric value: %s", numStr)
	}

	return 0, fmt.Errorf("invalid byte size format (use '2MB', '1024', '1.5GB', etc.)")
}

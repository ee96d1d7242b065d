// utils/env.go
package utils

import (
	"log"
	"os"
	"strconv"
	"time"
)

// EnvString returns the environment variable or the fallback when unset.
func EnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt parses the environment variable as an int, warning and falling
// back on garbage values.
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// EnvFloat parses the environment variable as a float64.
func EnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️ %s=%q is not a number, using %g", key, v, fallback)
		return fallback
	}
	return f
}

// EnvBool treats "1", "true", "yes" (any case strconv accepts plus yes) as true.
func EnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if v == "yes" || v == "YES" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️ %s=%q is not a boolean, using %v", key, v, fallback)
		return fallback
	}
	return b
}

// EnvSeconds reads an integer seconds value as a duration.
func EnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("⚠️ %s=%q is not a positive second count, using %s", key, v, fallback)
		return fallback
	}
	return time.Duration(n) * time.Second
}

package env

import (
	"log"
	"os"
	"strconv"
)

var logFatalf = log.Fatalf

func OptionalStringVariable(name string, defaultValue string) string {
	if !HasEnv(name) {
		return defaultValue
	}
	return os.Getenv(name)
}

func OptionalIntVariable(name string, defaultValue int) int {
	if !HasEnv(name) {
		return defaultValue
	}
	value := os.Getenv(name)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		logFatalf("Environment variable (%s) is not a valid int.", name)
	}
	return intValue
}

func OptionalInt64Variable(name string, defaultValue int64) int64 {
	if !HasEnv(name) {
		return defaultValue
	}
	value := os.Getenv(name)
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logFatalf("Environment variable (%s) is not a valid int64.", name)
	}
	return intValue
}

func OptionalFloatVariable(name string, defaultValue float64) float64 {
	if !HasEnv(name) {
		return defaultValue
	}
	value := os.Getenv(name)
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logFatalf("Environment variable (%s) is not a valid float.", name)
	}
	return floatValue
}

func HasEnv(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

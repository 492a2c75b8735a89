package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLoggerDefaultLevel(t *testing.T) {
	t.Setenv("ORDERS_LOG_LEVEL", "")

	setupLogger()

	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level by default, got %s", log.GetLevel())
	}
}

func TestSetupLoggerEnvOverride(t *testing.T) {
	t.Setenv("ORDERS_LOG_LEVEL", "debug")

	setupLogger()
	defer log.SetLevel(log.InfoLevel)

	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level from env, got %s", log.GetLevel())
	}
}

func TestSetupLoggerInvalidLevelFallsBack(t *testing.T) {
	t.Setenv("ORDERS_LOG_LEVEL", "chatty")

	setupLogger()

	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected fallback to info level, got %s", log.GetLevel())
	}
}

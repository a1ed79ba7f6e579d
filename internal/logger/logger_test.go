package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
)

func TestSetup_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&config.Config{Environment: "production", LogLevel: "info"}, &buf)

	WithUser(WithRequestID(log, "r-1"), "42").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["request_id"] != "r-1" || line["user_id"] != "42" {
		t.Errorf("Missing context attributes: %v", line)
	}
}

func TestSetup_DevelopmentRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&config.Config{Environment: "development", LogLevel: "warn"}, &buf)

	log.Info("hidden")
	WithError(log, errors.New("boom")).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info line should be filtered at warn level")
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("Expected error attribute in %q", out)
	}
}

package common

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG, "INFO": logger.INFO, "warn": logger.WARNING, "warning": logger.WARNING, "error": logger.ERROR,
	} {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := &imdbLogger{name: "imdb", level: logger.INFO, logger: log.New(&buf, "", 0)}

	l.Debugf("hidden %d", 1)
	l.Infof("opened %s", "db")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug message should be filtered at info level: %q", out)
	}
	if out != "INFO  | imdb   | opened db\n" {
		t.Errorf("Unexpected log line: %q", out)
	}
}

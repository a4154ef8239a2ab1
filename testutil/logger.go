package testutil

import (
	"flag"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
)

var (
	logLevel  = "warning"
	logStderr = false
)

func init() {
	flag.StringVar(&logLevel, "log-level", logLevel,
		"store log level: trace, debug, info, warn, error, fatal, or panic")
	flag.BoolVar(&logStderr, "log-stderr", logStderr, "send store logs to standard error")
}

// StoreLogger builds the logger handed to the badger and pebble backed
// stores. Output goes to a file under testdata so a noisy compaction pass
// does not drown the test output; -log-stderr redirects it.
func StoreLogger(tb testing.TB, file string) *log.Logger {
	tb.Helper()

	logger := log.New()

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		tb.Fatal(err)
	}
	logger.SetLevel(ll)

	if logStderr {
		return logger
	}
	w, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		tb.Fatal(err)
	}
	logger.SetOutput(w)
	return logger
}

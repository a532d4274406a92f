package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger: text output in dev, JSON everywhere else.
func New(env string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if env == "dev" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Discard is used by tests that do not care about log output.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

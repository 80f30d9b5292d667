package observability

import (
	"os"
	"sync"

	"github.com/jackchuma/tokenbank/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	loggingOnce sync.Once
)

// ConfigureLogging sets up the standard logrus logger. Only the first call has
// any effect.
func ConfigureLogging(cfg *config.LoggingConfig) error {
	var err error

	loggingOnce.Do(func() {
		if cfg.Format == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}

		// use a file if you want
		if cfg.File != "" {
			f, errOpen := os.OpenFile(cfg.File, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0660) //#nosec G302
			if errOpen != nil {
				err = errOpen
				return
			}
			logrus.SetOutput(f)
			logrus.Infof("Set output file to %s", cfg.File)
		}

		if cfg.Level != "" {
			level, errParse := logrus.ParseLevel(cfg.Level)
			if errParse != nil {
				err = errParse
				return
			}
			logrus.SetLevel(level)
			logrus.Debug("Set log level to: " + logrus.GetLevel().String())
		}
	})

	return err
}

package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log общий логгер приложения
var Log = logrus.New()

// Init настраивает уровень и формат логов
func Init(level, format string) {
	Log.SetOutput(os.Stdout)

	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

package shared

import (
	"os"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	proxyLogger   *logrus.Logger
	getLoggerOnce sync.Once
)

func GetLogger() *logrus.Logger {
	getLoggerOnce.Do(func() {
		logDir := os.Getenv("REPORTPROXY_LOG_DIR")
		if logDir == "" {
			logDir = os.TempDir()
		}

		lumberjackLogger := &lumberjack.Logger{
			Filename:   path.Join(logDir, "reportproxy.log"),
			MaxSize:    10, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}

		logFormatter := new(logrus.TextFormatter)
		logFormatter.TimestampFormat = time.RFC3339
		logFormatter.FullTimestamp = true

		proxyLogger = logrus.New()
		proxyLogger.SetFormatter(logFormatter)
		proxyLogger.SetLevel(logrus.InfoLevel)
		if os.Getenv("REPORTPROXY_LOG_STDERR") != "" {
			proxyLogger.SetOutput(os.Stderr)
		} else {
			proxyLogger.SetOutput(lumberjackLogger)
		}
	})
	return proxyLogger
}

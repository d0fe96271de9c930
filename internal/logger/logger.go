package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log доступен сразу: до Init пишет текстом в stderr, чтобы тесты и CLI могли логировать.
var Log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Silence отключает вывод, используется в тестах.
func Silence() {
	Log.SetOutput(io.Discard)
}

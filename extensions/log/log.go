package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		DisableQuote:     true,
		QuoteEmptyFields: true,
	})
}

func NewLogger(tag string) *logrus.Entry {
	return logrus.WithField("prefix", tag)
}

// SetLevel sets the level of the standard logger. An empty name keeps the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}

func ParseLevel(name string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return 0, E.New("unknown log level ", name)
	}
	return level, nil
}

// NewStdLogger returns a *log.Logger writing every line to entry at level.
// The returned closer releases the pipe behind the writer.
func NewStdLogger(entry *logrus.Entry, level logrus.Level) (*stdlog.Logger, io.Closer) {
	writer := entry.WriterLevel(level)
	return stdlog.New(writer, "", 0), writer
}

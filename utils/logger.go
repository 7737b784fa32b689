/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

// FileLogOptions controls the rolling file output attached to new loggers.
type FileLogOptions struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Dir        string `yaml:"dir" json:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

var (
	registryMu     sync.RWMutex
	loggerRegistry = map[string]*logrus.Logger{}
	defaultLevel   = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleFormat  = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	fileOptions    = FileLogOptions{
		Enabled:    EnvDefaultBool("FILE_LOG_ENABLED", false),
		Dir:        "logs",
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 30,
	}
)

var consoleOutput io.Writer = os.Stdout

// ConfigureFileLog replaces the file output options used by loggers created
// afterwards.
func ConfigureFileLog(opts FileLogOptions) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	fileOptions = opts
}

// ConfigureConsoleLogFormat selects "json" or "text" console output.
func ConfigureConsoleLogFormat(format string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleFormat = "json"
	} else {
		consoleFormat = "text"
	}
}

// SetConsoleOutput redirects console output of every registered logger.
func SetConsoleOutput(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	consoleOutput = w
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// ConfigureLogLevel sets the level of every registered logger and of the
// loggers created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultLevel = lvl
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
}

// SetLoggerLevel changes the level of one named logger. It reports false when
// no logger is registered under name.
func SetLoggerLevel(name string, lvlStr string) bool {
	registryMu.RLock()
	lg, ok := loggerRegistry[name]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	l := logrus.New()
	l.SetOutput(consoleOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if consoleFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&TextLogFormatter{LoggerName: name, NameWidth: 10})
	}

	if fileOptions.Enabled {
		l.AddHook(newFileHook(name, fileOptions))
	}
	loggerRegistry[name] = l
	return l
}

type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func newFileHook(name string, opts FileLogOptions) *fileHook {
	return &fileHook{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, strings.ToLower(name)+".log"),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		},
		formatter: &JSONLogFormatter{LoggerName: name},
	}
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// TextLogFormatter renders "time LEVEL pid --- [name] file:line : message k=v".
type TextLogFormatter struct {
	LoggerName string
	NameWidth  int
}

func (f *TextLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%5s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(os.Getpid()))
	b.WriteString(" --- [")
	b.WriteString(fmt.Sprintf("%*s", f.NameWidth, f.LoggerName))
	b.WriteString("] ")
	if entry.Caller != nil {
		b.WriteString(callerString(entry))
		b.WriteByte(' ')
	}
	b.WriteString(": ")
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one JSON object per entry.
type JSONLogFormatter struct {
	LoggerName string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	rec := struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}{
		Time:    entry.Time.Format(timestampFormat),
		Level:   entry.Level.String(),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = callerString(entry)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func callerString(entry *logrus.Entry) string {
	dir := filepath.Base(filepath.Dir(entry.Caller.File))
	return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(entry.Caller.File), entry.Caller.Line)
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if s, err := strconv.Atoi(v); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return def
}

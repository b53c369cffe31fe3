// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the printf-style logging helpers used across the
// launcher. Output goes through a single logrus logger so that both the local
// and the remote side of a launch share one format.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LevelEnv names the environment variable that overrides the log level.
const LevelEnv = "LAUNCHER_LOG_LEVEL"

var (
	logger   = newLogger(os.Stderr)
	exitFunc = os.Exit
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   !isTerminal(out),
	})
	l.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv(LevelEnv)); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetOutput redirects all log output.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   !isTerminal(w),
	})
}

// SetVerbose switches between debug and info level.
func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	logger.SetLevel(logrus.InfoLevel)
}

// SetLevel parses and applies a level name such as "debug" or "warn".
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	logger.SetLevel(lvl)
	return nil
}

// WithField returns an entry carrying one structured field.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

// WithFields returns an entry carrying several structured fields.
func WithFields(fields map[string]any) *logrus.Entry {
	return logger.WithFields(logrus.Fields(fields))
}

// Debug logs at debug level.
func Debug(f string, a ...any) {
	logger.Debugf(f, a...)
}

// Info logs at info level.
func Info(f string, a ...any) {
	logger.Infof(f, a...)
}

// Warn logs at warning level.
func Warn(f string, a ...any) {
	logger.Warnf(f, a...)
}

// Error logs at error level.
func Error(f string, a ...any) {
	logger.Errorf(f, a...)
}

// Fatal logs a highlighted message and exits with status 1.
func Fatal(f string, a ...any) {
	msg := fmt.Sprintf(f, a...)
	if isTerminal(logger.Out) {
		msg = color.New(color.FgRed, color.Bold).Sprint(msg)
	}
	logger.Error(msg)
	exitFunc(1)
}

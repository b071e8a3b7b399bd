/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
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

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	saved int
}

func (s *LoggerTestSuite) SetupTest() {
	s.saved = Level()
}

func (s *LoggerTestSuite) TearDownTest() {
	SetLogLevel(s.saved)
}

func (s *LoggerTestSuite) TestLogColor() {
	SetLogLevel(LevelTrace)
	var out bytes.Buffer
	l := New("color", &out)

	l.Tracef("this is tracef %s", "hello world")
	l.Debugf("this is debugf %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 5)
	for i, line := range lines {
		s.True(strings.HasPrefix(line, colors[i]+levelName[i]), line)
		s.Contains(line, "logger_test.go:")
		s.Contains(line, "hello world")
		s.True(strings.HasSuffix(line, reset))
	}
}

func (s *LoggerTestSuite) TestLevelFilter() {
	SetLogLevel(LevelWarn)
	var out bytes.Buffer
	l := New("filter", &out)

	l.Infof("dropped")
	l.Debugf("dropped")
	s.Equal(0, out.Len())

	l.Warnf("kept %d", 1)
	s.Contains(out.String(), "kept 1")
	s.Contains(out.String(), "filter")
}

func (s *LoggerTestSuite) TestSetLogLevelIgnoresOutOfRange() {
	SetLogLevel(LevelError)
	SetLogLevel(42)
	s.Equal(LevelError, Level())
	SetLogLevel(-1)
	s.Equal(LevelError, Level())

	SetLogLevel(LevelNoPrint)
	var out bytes.Buffer
	New("", &out).Errorf("silent")
	s.Equal(0, out.Len())
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

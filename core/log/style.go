// Copyright (C) 2017 Google Inc.
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

package log

import (
	"fmt"
	"strings"
	"time"
)

// Style provides customization for printing messages.
type Style struct {
	Name      string        // Name of the style.
	Timestamp bool          // If true, the timestamp will be printed if part of the message.
	Tag       bool          // If true, the tag will be printed if part of the message.
	Trace     bool          // If true, the trace will be printed if part of the message.
	Severity  SeverityStyle // How the severity of the message will be printed.
	Indent    string        // If not empty, replaces the severity of non-error messages.
}

// SeverityStyle is an enumerator of ways that severities can be printed.
type SeverityStyle int

const (
	// NoSeverity is the option to disable the printing of the severity.
	NoSeverity = SeverityStyle(iota)
	// SeverityShort is the option to display the severity as a single character.
	SeverityShort
	// SeverityLong is the option to display the severity in its full name.
	SeverityLong
	// SeverityLabel is the option to display "LOG" for anything below an error
	// and "ERROR" for the rest.
	SeverityLabel
)

func (ss SeverityStyle) print(s Severity) string {
	switch ss {
	case SeverityShort:
		return s.Short()
	case SeverityLabel:
		if s >= Error {
			return "ERROR"
		}
		return "LOG"
	}
	return s.String()
}

var styles []Style

func (s Style) String() string { return s.Name }

// Set replaces s with the registered style called name, so that a Style can be
// used as a flag.Value.
func (s *Style) Set(name string) error {
	for _, r := range styles {
		if r.Name == name {
			*s = r
			return nil
		}
	}
	names := make([]string, len(styles))
	for i, r := range styles {
		names[i] = r.Name
	}
	return fmt.Errorf("unknown log style %q, expected one of: %s", name, strings.Join(names, ", "))
}

// RegisterStyle registers the style s. The list of registered styles can be
// selected from command line flags.
func RegisterStyle(s Style) { styles = append(styles, s) }

// Handler returns a new Handler configured to write to w with the given style.
func (s Style) Handler(w Writer) Handler {
	return handler{
		handle: func(msg *Message) {
			if s.Indent != "" && msg.Severity < Error {
				w(s.Indent+msg.Text, msg.Severity)
				return
			}
			var parts [6]string
			m := parts[:0]
			if s.Timestamp && !msg.Time.IsZero() {
				m = append(m, HHMMSSsss(msg.Time))
			}
			if s.Severity != NoSeverity {
				m = append(m, s.Severity.print(msg.Severity)+":")
			}
			if s.Trace && len(msg.Trace) > 0 {
				m = append(m, fmt.Sprintf("%s", msg.Trace))
			}
			if s.Tag && msg.Tag != "" {
				m = append(m, fmt.Sprintf("[%s]", msg.Tag))
			}
			m = append(m, msg.Text)
			w(strings.Join(m, " "), msg.Severity)
		},
	}
}

// Print returns the message msg printed with the style s.
func (s Style) Print(msg *Message) string {
	w, b := Buffer()
	s.Handler(w).Handle(msg)
	return b.String()
}

// HHMMSSsss prints the time as a HH:MM:SS.sss
func HHMMSSsss(t time.Time) string {
	return fmt.Sprintf("%.2d:%.2d:%.2d.%.3d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e6)
}

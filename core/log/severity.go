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
)

// Severity defines the severity of a logging message.
type Severity int

const (
	// Debug indicates extended information for debugging.
	Debug Severity = iota
	// Info indicates minor informational messages.
	Info
	// Warning indicates issues that might affect the decode but are not
	// fatal to it.
	Warning
	// Error indicates non terminal failure conditions.
	Error
	// Fatal indicates a failure that stops the decode pass.
	Fatal
)

var severityNames = []string{"Debug", "Info", "Warning", "Error", "Fatal"}

// String returns the full name of the severity.
func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity<%d>", int(s))
}

// Short returns the severity as a single character.
func (s Severity) Short() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s][:1]
	}
	return "?"
}

// Set parses the severity from its full or single character name, so that a
// Severity can be used as a flag.Value.
func (s *Severity) Set(value string) error {
	for i, name := range severityNames {
		if strings.EqualFold(name, value) || strings.EqualFold(name[:1], value) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", value)
}

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

import "strings"

var (
	// Raw is a style that only prints the text of the message.
	Raw = Style{
		Name:     "raw",
		Severity: NoSeverity,
	}

	// Brief is a style that only prints the text and short severity of the
	// message.
	Brief = Style{
		Name:     "brief",
		Severity: SeverityShort,
	}

	// Normal is a style that prints the timestamp, tag, trace and short
	// severity.
	Normal = Style{
		Name:      "normal",
		Timestamp: true,
		Tag:       true,
		Trace:     true,
		Severity:  SeverityShort,
	}

	// Detailed is a style that prints the timestamp, tag, trace and long
	// severity.
	Detailed = Style{
		Name:      "detailed",
		Timestamp: true,
		Tag:       true,
		Trace:     true,
		Severity:  SeverityLong,
	}

	// Labelled is the style used for decoder messages interleaved with the
	// decoded output: "LOG: text" and "ERROR: text".
	Labelled = Style{
		Name:     "labelled",
		Severity: SeverityLabel,
	}

	// LabelledIndented is the Labelled style with non-error messages pushed 64
	// columns to the right so they stand apart from the decoded output.
	LabelledIndented = Style{
		Name:     "labelled-indent",
		Severity: SeverityLabel,
		Indent:   strings.Repeat(" ", 64),
	}
)

func init() {
	RegisterStyle(Raw)
	RegisterStyle(Brief)
	RegisterStyle(Normal)
	RegisterStyle(Detailed)
	RegisterStyle(Labelled)
	RegisterStyle(LabelledIndented)
}

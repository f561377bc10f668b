// Copyright (C) 2019 Google Inc.
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

package assert

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"
	"unicode"
)

// level picks the Output method a committed assertion is written with.
type level int

const (
	// Log reports without failing the test.
	Log = level(iota)
	// Error fails the test and lets it continue.
	Error
	// Fatal fails the test and stops it.
	Fatal
)

var levelNames = [...]string{Log: "Info", Error: "Error", Fatal: "Critical"}

func (l level) String() string { return levelNames[l] }

// Assertion collects the report of a single check. Lines are tab separated
// and only reach the Output if the check fails, or when one of Log, Error or
// Fatal is called.
type Assertion struct {
	level level
	out   *bytes.Buffer
	to    Output
}

// Log adds args to the report and writes it at Log level.
func (a *Assertion) Log(args ...interface{}) { a.commitAt(Log, args) }

// Error adds args to the report and writes it at Error level.
func (a *Assertion) Error(args ...interface{}) { a.commitAt(Error, args) }

// Fatal adds args to the report and writes it at Fatal level.
func (a *Assertion) Fatal(args ...interface{}) { a.commitAt(Fatal, args) }

func (a *Assertion) commitAt(l level, args []interface{}) {
	fmt.Fprint(a.out, args...)
	a.level = l
	a.Commit()
}

// write adds values to the report, separated by tabs. Unless raw is set,
// strings and errors are quoted with backticks.
func (a *Assertion) write(raw bool, values []interface{}) *Assertion {
	for i, v := range values {
		if i > 0 {
			a.out.WriteByte('\t')
		}
		switch v := v.(type) {
		case string:
			if !raw {
				fmt.Fprintf(a.out, "`%s`", v)
				continue
			}
		case error:
			if !raw {
				fmt.Fprintf(a.out, "`%v`", v)
				continue
			}
		}
		fmt.Fprint(a.out, v)
	}
	return a
}

func (a *Assertion) newline() *Assertion {
	a.out.WriteString("\n    ")
	return a
}

// Print adds quoted values to the report.
func (a *Assertion) Print(values ...interface{}) *Assertion { return a.write(false, values) }

// Raw adds values to the report without quoting.
func (a *Assertion) Raw(values ...interface{}) *Assertion { return a.write(true, values) }

// Println is Print followed by a new report line.
func (a *Assertion) Println(values ...interface{}) *Assertion { return a.Print(values...).newline() }

// Rawln is Raw followed by a new report line.
func (a *Assertion) Rawln(values ...interface{}) *Assertion { return a.Raw(values...).newline() }

// Printf adds formatted text to the report.
func (a *Assertion) Printf(format string, args ...interface{}) *Assertion {
	fmt.Fprintf(a.out, format, args...)
	return a
}

// Add adds a report line labelled key.
func (a *Assertion) Add(key string, values ...interface{}) *Assertion {
	a.out.WriteString(key + "\t\t")
	return a.Println(values...)
}

// Got adds the line with the value under test.
func (a *Assertion) Got(values ...interface{}) *Assertion { return a.Add("Got", values...) }

// Expect adds the line with the comparison and the expected values.
func (a *Assertion) Expect(op string, values ...interface{}) *Assertion {
	a.out.WriteString("Expect\t" + op + "\t")
	return a.Println(values...)
}

// ExpectRaw is Expect without quoting.
func (a *Assertion) ExpectRaw(op string, values ...interface{}) *Assertion {
	a.out.WriteString("Expect\t" + op + "\t")
	return a.Rawln(values...)
}

// Compare adds both the Got and the Expect lines.
func (a *Assertion) Compare(value interface{}, op string, expect ...interface{}) *Assertion {
	return a.Got(value).Expect(op, expect...)
}

// CompareRaw is Compare without quoting.
func (a *Assertion) CompareRaw(value interface{}, op string, expect ...interface{}) *Assertion {
	return a.Got(value).ExpectRaw(op, expect...)
}

// Test writes the report if condition is false, at Error level or above, and
// returns condition.
func (a *Assertion) Test(condition bool) bool {
	if !condition {
		a.level = max(a.level, Error)
		a.Commit()
	}
	return condition
}

// TestDeepEqual compares value and expect with reflect.DeepEqual.
func (a *Assertion) TestDeepEqual(value, expect interface{}) bool {
	return a.Compare(value, "deep ==", expect).Test(reflect.DeepEqual(value, expect))
}

// Commit writes the report to the Output with its columns aligned.
func (a Assertion) Commit() {
	buf := &bytes.Buffer{}
	tw := tabwriter.NewWriter(buf, 1, 4, 1, ' ', tabwriter.StripEscape)
	tw.Write(a.out.Bytes())
	tw.Flush()
	msg := a.level.String() + ":" + strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	switch a.level {
	case Error:
		a.to.Error(msg)
	case Fatal:
		a.to.Fatal(msg)
	default:
		a.to.Log(msg)
	}
}

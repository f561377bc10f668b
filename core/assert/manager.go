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
	"context"
	"fmt"

	"github.com/envytools/demmt/core/log"
)

// Output is where failed assertions are reported. *testing.T satisfies it.
type Output interface {
	Fatal(...interface{})
	Error(...interface{})
	Log(...interface{})
}

// Manager starts assertions that report to one Output.
type Manager struct {
	out Output
}

// To returns a Manager reporting to t, which is either an Output or a
// context whose log handler receives the reports.
func To(t interface{}) Manager {
	switch t := t.(type) {
	case context.Context:
		return Manager{logOutput{t}}
	case Output:
		return Manager{t}
	}
	panic(fmt.Errorf("cannot report assertions to %T", t))
}

// For is assert.To(t).For(msg, args...).
func For(t interface{}, msg string, args ...interface{}) *Assertion {
	return To(t).For(msg, args...)
}

// For starts an assertion whose report is titled with the formatted msg.
func (m Manager) For(msg string, args ...interface{}) *Assertion {
	a := &Assertion{level: Error, out: &bytes.Buffer{}, to: m.out}
	return a.Printf(msg, args...).newline()
}

// logOutput reports through the logger of a context. Failures are logged at
// Fatal severity so that log.TestHandler fails the test.
type logOutput struct{ ctx context.Context }

func (o logOutput) Fatal(args ...interface{}) { log.F(o.ctx, true, "%s", fmt.Sprint(args...)) }
func (o logOutput) Error(args ...interface{}) { log.F(o.ctx, false, "%s", fmt.Sprint(args...)) }
func (o logOutput) Log(args ...interface{})   { log.I(o.ctx, "%s", fmt.Sprint(args...)) }

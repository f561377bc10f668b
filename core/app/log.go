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

package app

import (
	"context"
	"flag"

	"github.com/envytools/demmt/core/log"
)

// LogFlags holds the command line options that control the root logger.
type LogFlags struct {
	Level log.Severity
	Style log.Style
}

// Bind registers the log flags on set.
func (f *LogFlags) Bind(set *flag.FlagSet) {
	set.Var(&f.Level, "log-level", "lowest severity of diagnostics to print (debug, info, warning, error, fatal)")
	set.Var(&f.Style, "log-style", "diagnostic style (raw, brief, normal, detailed, labelled, labelled-indent)")
}

// Context returns ctx with a filter for f.Level and a handler that prints
// through w in f.Style. A message that asks the process to stop ends the
// application with FatalExit once it has been written.
func (f *LogFlags) Context(ctx context.Context, w log.Writer) context.Context {
	to := f.Style.Handler(w)
	ctx = log.PutFilter(ctx, log.SeverityFilter(f.Level))
	ctx = log.PutHandler(ctx, log.NewHandler(func(m *log.Message) {
		to.Handle(m)
		if m.StopProcess {
			to.Close()
			panic(FatalExit)
		}
	}, to.Close))
	return ctx
}

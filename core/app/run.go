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

// Package app provides the process runner shared by the command line tools:
// flag parsing, the root logging context, crash reporting and exit codes.
package app

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/envytools/demmt/core/app/crash"
	"github.com/envytools/demmt/core/log"
)

var (
	// Name is the full name of the application
	Name = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	// ExitFuncForTesting can be set to change the behaviour when there is a command line parsing failure.
	// It defaults to os.Exit
	ExitFuncForTesting = os.Exit
	// ShortHelp should be set to add a help message to the usage text.
	ShortHelp = ""
	// ShortUsage is usage text for the additional non-flag arguments.
	ShortUsage = ""
	// UsageFooter is printed at the bottom of the usage text
	UsageFooter = ""
	// Flags are the logging options applied by Run. Applications may change
	// the defaults before calling Run.
	Flags = LogFlags{Level: log.Info, Style: log.Normal}
	// Stdout is the buffered standard output. Diagnostics below error
	// severity are written through it so they stay in order with the
	// application output. Run flushes it when main returns.
	Stdout = bufio.NewWriter(os.Stdout)
)

// ExitCode is the type for named return values from the application main entry point.
type ExitCode int

const (
	// SuccessExit is the exit code for succesful exit.
	SuccessExit ExitCode = iota
	// FatalExit is the exit code if something logs at a terminating severity.
	FatalExit
	// UsageExit is the exit code if the command line could not be parsed.
	UsageExit
)

// Task is the signature of an application main function.
type Task func(ctx context.Context) error

// Run performs all the work needed to start up an application.
// It parses the command line, builds the root context with the logging
// handler and filter chosen by the flags, runs main and converts a returned
// error into a fatal log message and a non-zero exit code.
func Run(main Task) {
	crash.Register(onCrash)

	defer func() {
		Stdout.Flush()
		switch cause := recover().(type) {
		case nil:
		case ExitCode:
			ExitFuncForTesting(int(cause))
		default:
			crash.Crash(cause)
		}
	}()

	Flags.Bind(flag.CommandLine)
	flag.CommandLine.Usage = Usage
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		panic(UsageExit)
	}

	ctx := Flags.Context(context.Background(), LogWriter())
	if err := main(ctx); err != nil {
		log.F(ctx, true, "Main failed\nError: %v", err)
	}
}

// LogWriter returns the writer diagnostics are printed with. Errors go to
// stderr after any buffered output, everything else goes to Stdout.
func LogWriter() log.Writer {
	out := log.To(Stdout)
	return func(text string, severity log.Severity) {
		if severity < log.Error {
			out(text, severity)
			return
		}
		Stdout.Flush()
		os.Stderr.WriteString(text + "\n")
	}
}

// Usage prints the command usage information to stderr.
func Usage() {
	out := flag.CommandLine.Output()
	if ShortHelp != "" {
		fmt.Fprintf(out, "%s: %s\n", Name, ShortHelp)
	}
	fmt.Fprintf(out, "Usage: %s [flags] %s\n", Name, ShortUsage)
	flag.CommandLine.PrintDefaults()
	fmt.Fprint(out, UsageFooter)
}

func onCrash(e interface{}) {
	fmt.Fprintf(os.Stderr, "\n%s crashed: %v\n%s", Name, e, debug.Stack())
}

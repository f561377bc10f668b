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

package log

import (
	"context"
	"time"
)

// The logger settings are kept on the context under these keys.
type ctxKey int

const (
	handlerKey ctxKey = iota
	filterKey
	clockKey
	tagKey
	traceKey
)

// PutHandler returns ctx with messages sent to h.
func PutHandler(ctx context.Context, h Handler) context.Context {
	return context.WithValue(ctx, handlerKey, h)
}

// GetHandler returns the Handler of ctx, or nil if messages are dropped.
func GetHandler(ctx context.Context) Handler {
	h, _ := ctx.Value(handlerKey).(Handler)
	return h
}

// Filter decides which messages reach the handler.
type Filter interface {
	// ShowSeverity returns true if messages of severity s are shown.
	ShowSeverity(s Severity) bool
}

// SeverityFilter shows the messages at or above its severity.
type SeverityFilter Severity

func (f SeverityFilter) ShowSeverity(s Severity) bool { return Severity(f) <= s }

// PutFilter returns ctx with messages filtered by f.
func PutFilter(ctx context.Context, f Filter) context.Context {
	return context.WithValue(ctx, filterKey, f)
}

// GetFilter returns the Filter of ctx, or nil if every message is shown.
func GetFilter(ctx context.Context) Filter {
	f, _ := ctx.Value(filterKey).(Filter)
	return f
}

// Clock stamps messages with a time.
type Clock interface {
	Time() time.Time
}

// FixedClock stamps every message with the same time.
type FixedClock time.Time

func (c FixedClock) Time() time.Time { return time.Time(c) }

// PutClock returns ctx with messages stamped by c instead of the wall clock.
func PutClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey, c)
}

// GetClock returns the Clock of ctx, or nil for the wall clock.
func GetClock(ctx context.Context) Clock {
	c, _ := ctx.Value(clockKey).(Clock)
	return c
}

// PutTag returns ctx with messages tagged with tag, usually the program name.
func PutTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tagKey, tag)
}

// GetTag returns the tag of ctx.
func GetTag(ctx context.Context) string {
	t, _ := ctx.Value(tagKey).(string)
	return t
}

// trace is a stack of names entered with Enter.
type trace struct {
	name   string
	parent *trace
}

// Enter returns ctx with name pushed on the trace of its messages.
func Enter(ctx context.Context, name string) context.Context {
	parent, _ := ctx.Value(traceKey).(*trace)
	return context.WithValue(ctx, traceKey, &trace{name: name, parent: parent})
}

// GetTrace returns the names entered on ctx, innermost first.
func GetTrace(ctx context.Context) []string {
	var names []string
	for t, _ := ctx.Value(traceKey).(*trace); t != nil; t = t.parent {
		names = append(names, t.name)
	}
	return names
}

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

// Package crash reports panics that are about to take the process down.
package crash

import "sync"

var (
	mu        sync.Mutex
	reporters []func(e interface{})
	reported  bool
)

// Register adds r to the reporters run by Crash.
func Register(r func(e interface{})) {
	mu.Lock()
	reporters = append(reporters, r)
	mu.Unlock()
}

// Crash runs the registered reporters with e and panics with e. Only the
// first call reports; a panic raised by a reporter is not reported again.
func Crash(e interface{}) {
	mu.Lock()
	rs := reporters
	if reported {
		rs = nil
	}
	reported = true
	mu.Unlock()
	for _, r := range rs {
		r(e)
	}
	panic(e)
}

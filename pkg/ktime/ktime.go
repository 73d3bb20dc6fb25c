/*
Copyright 2026 The Vkern Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ktime stands in for the kernel's timer driver: a single
// monotonic wall-clock source that the rest of the module treats as
// "now()". Real kernel code would read this off a hardware timer;
// here it is backed by the host clock so tests stay deterministic by
// overriding Now.
package ktime

import "time"

// Time mirrors the kernel's time_t: whole seconds since the epoch.
type Time int64

// Now returns the current wall-clock time. Tests that need a fixed
// clock should save/restore this var.
var Now = func() Time {
	return Time(time.Now().Unix())
}

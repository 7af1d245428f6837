// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner owns the run lifecycle: it creates run rows, admits
// runs through a process-wide concurrency cap, drives the interpreter,
// and persists every status transition before broadcasting the matching
// lifecycle event.
//
// The permitted transitions are the ones workflow.RunStatus.CanTransition
// allows:
//
//	pending         → running
//	running         → completed | failed | cancelled | awaiting_action
//	awaiting_action → running | cancelled | failed
//
// completed, failed and cancelled are terminal. Every edge is written to
// the backend first and announced on the run, workflow and org channels
// second, so a subscriber that reads the row after receiving an event
// never observes an older status.
//
// The backend run row is the source of truth. The runner only keeps an
// in-process table of live executions so Cancel can reach the goroutine
// that owns a run; paused runs have no goroutine and are resumed from
// their persisted marker via SubmitAction.
//
// Shutdown is two-phase: StartDraining makes Start and SubmitAction
// refuse new work while in-flight runs finish, and Stop cancels whatever
// is still executing and waits for the executor goroutines to exit.
package runner

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

package runner

import "time"

// MetricsCollector receives execution measurements. Implementations
// must be safe for concurrent use: step completions arrive from fan-out
// worker goroutines.
type MetricsCollector interface {
	// RecordRunStart counts a run taking the running edge.
	RecordRunStart(workflowID, triggerType string)

	// RecordRunComplete counts a run reaching a terminal status.
	RecordRunComplete(workflowID, status string, elapsed time.Duration)

	// RecordStepComplete counts one finished step record.
	RecordStepComplete(workflowID, blockID, status string, elapsed time.Duration)

	// IncrementQueueDepth and DecrementQueueDepth bracket the wait for
	// an execution slot.
	IncrementQueueDepth()
	DecrementQueueDepth()
}

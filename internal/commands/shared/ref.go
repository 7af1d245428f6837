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

package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/pkg/workflow"
)

// ResolveWorkflowRef turns a command-line workflow reference into a
// workflow row. A ref is tried as an ID first, then as an exact name.
func ResolveWorkflowRef(ctx context.Context, c *client.Client, ref string) (*workflow.Workflow, error) {
	if ref == "" {
		return nil, fmt.Errorf("workflow reference is empty")
	}

	wf, err := c.GetWorkflow(ctx, ref)
	if err == nil {
		return wf, nil
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		return nil, err
	}

	workflows, err := c.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	var match *workflow.Workflow
	for _, candidate := range workflows {
		if candidate.Name == ref {
			if match != nil {
				return nil, fmt.Errorf("workflow name %q is ambiguous; use the ID", ref)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no workflow with ID or name %q", ref)
	}

	return match, nil
}

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

package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/tombee/baton/pkg/errors"
)

const (
	bedrockService = "bedrock"

	// bedrockDefaultModel is the cross-region Claude model identifier.
	bedrockDefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	// bedrockAnthropicVersion is required in every Claude invoke body.
	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// bedrockProvider invokes Claude models through the Amazon Bedrock
// runtime, signing requests with SigV4. Credentials come from the
// ambient AWS chain, optionally via an assumed role.
type bedrockProvider struct {
	region  string
	roleARN string
	baseURL string
	client  *http.Client
	awsCfg  aws.Config
	signer  *v4.Signer

	credMu     sync.Mutex
	creds      aws.Credentials
	credExpiry time.Time
}

// NewBedrock creates a Bedrock provider. The AWS credential chain is
// loaded here; Credentials.Region overrides the chain's region and
// Credentials.RoleARN selects an STS assume-role flow.
func NewBedrock(creds Credentials, client *http.Client) (Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var opts []func(*config.LoadOptions) error
	if creds.Region != "" {
		opts = append(opts, config.WithRegion(creds.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: "bedrock",
			Message:  fmt.Sprintf("failed to load AWS configuration: %v", err),
			Cause:    err,
		}
	}

	return newBedrock(awsCfg, creds, client)
}

// newBedrock wires a provider from an already-loaded AWS config.
func newBedrock(awsCfg aws.Config, creds Credentials, client *http.Client) (Provider, error) {
	if awsCfg.Region == "" {
		return nil, &errors.ProviderError{
			Provider:   "bedrock",
			Message:    "AWS region is not configured",
			Suggestion: "set agent_region on the block or configure a default AWS region",
		}
	}

	if client == nil {
		var err error
		client, err = newDefaultClient()
		if err != nil {
			return nil, err
		}
	}

	baseURL := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", awsCfg.Region)
	if creds.BaseURL != "" {
		baseURL = strings.TrimSuffix(creds.BaseURL, "/")
	}

	return &bedrockProvider{
		region:  awsCfg.Region,
		roleARN: creds.RoleARN,
		baseURL: baseURL,
		client:  client,
		awsCfg:  awsCfg,
		signer:  v4.NewSigner(),
	}, nil
}

// Name returns the provider identifier.
func (p *bedrockProvider) Name() string {
	return "bedrock"
}

// Complete invokes the model through the Bedrock runtime.
func (p *bedrockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, &errors.ValidationError{
			Field:       "prompt",
			Message:     "completion request must include a prompt",
			SuggestText: "set agent_prompt on the block's logic",
		}
	}

	model := req.Model
	if model == "" {
		model = bedrockDefaultModel
	}
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	apiReq := bedrockInvokeRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.System,
		Temperature:      req.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: "bedrock",
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
			Cause:    err,
		}
	}

	invokeURL := fmt.Sprintf("%s/model/%s/invoke", p.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, invokeURL, bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: "bedrock",
			Message:  fmt.Sprintf("failed to create request: %v", err),
			Cause:    err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	payloadHash := sha256.Sum256(body)
	hashHex := hex.EncodeToString(payloadHash[:])
	httpReq.Header.Set("X-Amz-Content-Sha256", hashHex)

	awsCreds, err := p.credentials(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.signer.SignHTTP(ctx, awsCreds, httpReq, hashHex, bedrockService, p.region, time.Now()); err != nil {
		return nil, &errors.ProviderError{
			Provider: "bedrock",
			Message:  fmt.Sprintf("failed to sign request: %v", err),
			Cause:    err,
		}
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: "bedrock",
			Message:  fmt.Sprintf("request failed: %v", err),
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "bedrock",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			Cause:      err,
		}
	}

	requestID := resp.Header.Get("x-amzn-RequestId")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(respBody))
		var errResp bedrockErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			message = errResp.Message
		}
		return nil, &errors.ProviderError{
			Provider:   "bedrock",
			StatusCode: resp.StatusCode,
			Message:    message,
			Suggestion: bedrockSuggestion(resp.StatusCode),
			RequestID:  requestID,
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "bedrock",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	var content strings.Builder
	for _, blk := range apiResp.Content {
		if blk.Type != "text" {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(blk.Text)
	}

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Content:      content.String(),
		Model:        respModel,
		FinishReason: mapAnthropicStopReason(apiResp.StopReason),
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		RequestID: requestID,
	}, nil
}

// credentials returns cached AWS credentials, refreshing through the
// provider chain or an assumed role when stale. Cached at most an hour.
func (p *bedrockProvider) credentials(ctx context.Context) (aws.Credentials, error) {
	p.credMu.Lock()
	defer p.credMu.Unlock()

	if !p.credExpiry.IsZero() && time.Now().Before(p.credExpiry) {
		return p.creds, nil
	}

	var creds aws.Credentials
	if p.roleARN != "" {
		out, err := sts.NewFromConfig(p.awsCfg).AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(p.roleARN),
			RoleSessionName: aws.String("baton-agent"),
		})
		if err != nil {
			return aws.Credentials{}, &errors.ProviderError{
				Provider:   "bedrock",
				Message:    fmt.Sprintf("failed to assume role: %v", err),
				Suggestion: "check that the role ARN is correct and the caller may assume it",
				Cause:      err,
			}
		}
		creds = aws.Credentials{
			AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
			SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken:    aws.ToString(out.Credentials.SessionToken),
			Expires:         aws.ToTime(out.Credentials.Expiration),
			CanExpire:       true,
		}
	} else {
		if p.awsCfg.Credentials == nil {
			return aws.Credentials{}, &errors.ProviderError{
				Provider:   "bedrock",
				Message:    "no AWS credentials configured",
				Suggestion: "configure AWS credentials via the environment or shared config",
			}
		}
		var err error
		creds, err = p.awsCfg.Credentials.Retrieve(ctx)
		if err != nil {
			return aws.Credentials{}, &errors.ProviderError{
				Provider:   "bedrock",
				Message:    fmt.Sprintf("unable to resolve AWS credentials: %v", err),
				Suggestion: "configure AWS credentials via the environment or shared config",
				Cause:      err,
			}
		}
	}

	expiry := creds.Expires
	if expiry.IsZero() || time.Until(expiry) > time.Hour {
		expiry = time.Now().Add(time.Hour)
	}
	p.creds = creds
	p.credExpiry = expiry

	return creds, nil
}

// bedrockSuggestion maps an error status to actionable guidance.
func bedrockSuggestion(statusCode int) string {
	switch statusCode {
	case http.StatusForbidden:
		return "Check IAM permissions for bedrock:InvokeModel and model access in this region"
	case http.StatusNotFound:
		return "Check the model identifier; it may not be available in this region"
	case http.StatusTooManyRequests:
		return "Bedrock throttled the request; reduce frequency or request a quota increase"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Bedrock is experiencing issues; retry after a short delay"
	default:
		return "Check the Bedrock runtime documentation for details"
	}
}

// bedrockInvokeRequest is the Claude invoke body for the Bedrock
// runtime. It mirrors the Messages API with anthropic_version in place
// of the model field, which rides in the URL.
type bedrockInvokeRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type bedrockErrorResponse struct {
	Message string `json:"message"`
}

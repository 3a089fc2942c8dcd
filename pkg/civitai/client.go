// Civitloader talks to the Civitai REST API for model search and model details. The client is a thin pass-through:
// response bodies are handed back as raw JSON and failed calls are never retried.

package civitai

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nobletooth/civitloader/pkg/config"
	"github.com/valyala/fasthttp"
)

var (
	baseURLFlag = flag.String("civitai_base_url", "https://civitai.com/api/v1", "Base URL of the Civitai REST API.")
	timeoutFlag = flag.Duration("civitai_timeout", 60*time.Second, "Timeout of a single Civitai API call.")
)

// ErrFileNotFound is returned by GetDownloadURL when the version has no file with the requested id.
var ErrFileNotFound = errors.New("file not found in model version")

// maxErrorBody caps how much of a failed response is kept in an APIError.
const maxErrorBody = 1024

// Client calls the Civitai API. It is safe for concurrent use.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
}

// NewClient returns a client for the API rooted at `baseURL`, e.g. "https://civitai.com/api/v1".
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("expected a non-empty civitai base url")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("expected a positive civitai timeout, got %s", timeout)
	}
	return &Client{
		http: &fasthttp.Client{
			Name:         "civitloader",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}, nil
}

// NewClientFromFlags builds the client from --civitai_base_url and --civitai_timeout.
func NewClientFromFlags() (*Client, error) {
	return NewClient(*baseURLFlag, *timeoutFlag)
}

// SearchModels runs GET /models. The API rejects `page` together with `query`, so query searches send the cursor
// instead.
func (c *Client) SearchModels(ctx context.Context, request SearchRequest) ([]byte, error) {
	if err := config.Validate(request); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)

	args.Set("limit", strconv.Itoa(request.Limit))
	args.Set("sort", request.Sort)
	args.Set("period", request.Period)
	if request.Query != "" {
		args.Set("query", request.Query)
		if request.Cursor != "" {
			args.Set("cursor", request.Cursor)
		}
	} else {
		args.Set("page", strconv.Itoa(request.Page))
	}
	for _, modelType := range request.Types {
		args.Add("types", string(modelType))
	}
	if request.NSFW != nil {
		args.Set("nsfw", strconv.FormatBool(*request.NSFW))
	}
	return c.get(ctx, "/models?"+args.String(), request.APIToken)
}

// GetModel runs GET /models/{id}.
func (c *Client) GetModel(ctx context.Context, modelID int) ([]byte, error) {
	return c.get(ctx, "/models/"+strconv.Itoa(modelID), "" /*token*/)
}

// GetModelVersion runs GET /model-versions/{id}.
func (c *Client) GetModelVersion(ctx context.Context, versionID int) ([]byte, error) {
	return c.get(ctx, "/model-versions/"+strconv.Itoa(versionID), "" /*token*/)
}

// GetDownloadURL returns the download URL of the file `fileID` of the model version `versionID`.
func (c *Client) GetDownloadURL(ctx context.Context, versionID, fileID int) (string, error) {
	body, err := c.GetModelVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	var version ModelVersion
	if err := sonic.Unmarshal(body, &version); err != nil {
		return "", fmt.Errorf("failed to decode model version %d: %w", versionID, err)
	}
	for _, file := range version.Files {
		if file.ID == fileID {
			return file.DownloadURL, nil
		}
	}
	return "", fmt.Errorf("%w: file %d, version %d", ErrFileNotFound, fileID, versionID)
}

// get performs a GET on `pathAndQuery` relative to the base URL and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, pathAndQuery, token string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + pathAndQuery)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, hasDeadline := ctx.Deadline(); hasDeadline && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	startedAt := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		slog.Error("Civitai request failed.", "path", pathAndQuery, "error", err)
		return nil, fmt.Errorf("civitai request failed: %w", err)
	}
	statusCode := resp.StatusCode()
	slog.Debug("Civitai request done.", "path", pathAndQuery, "status", statusCode,
		"duration", time.Since(startedAt))
	if statusCode < 200 || statusCode >= 300 {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		apiErr := &APIError{StatusCode: statusCode, Body: string(body)}
		slog.Error("Civitai returned an error.", "path", pathAndQuery, "status", statusCode)
		return nil, apiErr
	}
	// The response is released on return, so the body must be copied out.
	return append([]byte(nil), resp.Body()...), nil
}

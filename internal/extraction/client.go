package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

// HTTPError is a non-2xx answer from the extraction API.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return appErr.ErrUpstream
}

// IsGatewayTimeout reports whether err is an upstream 504.
func IsGatewayTimeout(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusGatewayTimeout
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadAssets sends one multipart batch and returns the created assets in
// asset id order.
func (c *Client) UploadAssets(ctx context.Context, project, fileType string, docs []Document) ([]UploadedAsset, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("empty upload batch: %w", appErr.ErrInvalid)
	}
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, doc := range docs {
		part, err := w.CreateFormFile("files", doc.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(doc.Content); err != nil {
			return nil, err
		}
		fields := [][2]string{
			{"ext_ids", doc.ExtID()},
			{"ext_file_names", doc.Name},
			{"file_types", fileType},
		}
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, err
			}
		}
	}
	if err := w.WriteField("proj_name", project); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/assets/upload/", w.FormDataContentType(), body, &data); err != nil {
		return nil, err
	}
	assets := make([]UploadedAsset, 0, len(data))
	for id, raw := range data {
		assets = append(assets, UploadedAsset{AssetID: id, ExtFileID: uploadedExtID(raw)})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].AssetID < assets[j].AssetID })
	return assets, nil
}

// uploadedExtID pulls the external id out of an upload entry when the API
// echoes it back.
func uploadedExtID(raw json.RawMessage) string {
	var entry struct {
		ExtID     string `json:"ext_id"`
		ExtFileID string `json:"ext_file_id"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ""
	}
	if entry.ExtFileID != "" {
		return entry.ExtFileID
	}
	return entry.ExtID
}

func (c *Client) AssetStatus(ctx context.Context, ids []string) (map[string]Status, error) {
	return c.status(ctx, "/assets/status/", ids)
}

func (c *Client) TransformStatus(ctx context.Context, ids []string) (map[string]Status, error) {
	return c.status(ctx, "/transform/status/", ids)
}

func (c *Client) status(ctx context.Context, path string, ids []string) (map[string]Status, error) {
	var out map[string]Status
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]interface{}{"ids": ids}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InitiateTransform starts a transformation for a project and returns the
// job id without waiting for it.
func (c *Client) InitiateTransform(ctx context.Context, project string, params TransformParams) (string, error) {
	req := map[string]interface{}{
		"proj_name":        project,
		"transform_params": params,
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/transform/initiate", req, &raw); err != nil {
		return "", err
	}
	id := transformIDFrom(raw)
	if id == "" {
		return "", fmt.Errorf("initiate transform: no id in response: %w", appErr.ErrUpstream)
	}
	return id, nil
}

func transformIDFrom(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		TransformID string `json:"transform_id"`
		ID          string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.TransformID != "" {
		return obj.TransformID
	}
	return obj.ID
}

// TransformResults fetches the per-asset results of a job. Each asset may
// carry a single result object or a list of them.
func (c *Client) TransformResults(ctx context.Context, transformID string) ([]Result, []json.RawMessage, error) {
	var data map[string]json.RawMessage
	path := "/transform/" + url.PathEscape(transformID) + "/results"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, nil, err
	}
	assetIDs := make([]string, 0, len(data))
	for id := range data {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	var results []Result
	var raws []json.RawMessage
	for _, assetID := range assetIDs {
		items, err := splitResults(data[assetID])
		if err != nil {
			return nil, nil, fmt.Errorf("decode results for %s: %w", assetID, err)
		}
		for _, item := range items {
			var r Result
			if err := json.Unmarshal(item, &r); err != nil {
				logutil.GetLogger(ctx).Warn("undecodable transform result",
					zap.String("asset_id", assetID), zap.Error(err))
			}
			r.AssetID = assetID
			results = append(results, r)
			raws = append(raws, item)
		}
	}
	return results, raws, nil
}

func splitResults(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{trimmed}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

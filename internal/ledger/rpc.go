package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/fulmenhq/bundlepress/pkg/fetch"
	"github.com/fulmenhq/bundlepress/pkg/logger"
	"github.com/fulmenhq/bundlepress/pkg/safeio"
)

const maxRPCReplyBytes = 64 << 20

// RPCError is an error object returned by the ledger gateway.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

// RPCClient reaches the ledger through a JSON-RPC 2.0 gateway over HTTP.
type RPCClient struct {
	url        string
	credential string
	fetcher    fetch.HTTPFetcher
	nextID     atomic.Int64
}

// NewRPCClient returns a client for url. credential is sent as a bearer token
// when non-empty.
func NewRPCClient(url, credential string, fetcher fetch.HTTPFetcher) *RPCClient {
	return &RPCClient{url: url, credential: credential, fetcher: fetcher}
}

// LoadCredential reads a credential file. An empty path yields no credential.
func LoadCredential(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	clean, err := safeio.CleanUserPath(path)
	if err != nil {
		return "", fmt.Errorf("invalid credential path: %w", err)
	}
	data, err := safeio.ReadFile(clean)
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params, result interface{}) error {
	id := c.nextID.Add(1)
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	logger.Trace("ledger call", logger.String("method", method), logger.Int64("id", id))
	resp, err := c.fetcher.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	body, err := fetch.ReadBody(resp, maxRPCReplyBytes)
	if err != nil {
		return fmt.Errorf("%s: failed to read reply: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: gateway returned status %d", method, resp.StatusCode)
	}

	var reply rpcResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("%s: invalid reply: %w", method, err)
	}
	if reply.Error != nil {
		return fmt.Errorf("%s: %w", method, reply.Error)
	}
	if result == nil || len(reply.Result) == 0 || string(reply.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%s: unexpected result: %w", method, err)
	}
	return nil
}

func (c *RPCClient) InitializeProgram(ctx context.Context, cfg ProgramConfig) (ProgramIdentity, error) {
	var out ProgramIdentity
	if err := c.call(ctx, "initializeProgram", cfg, &out); err != nil {
		return ProgramIdentity{}, err
	}
	if out.Identity == "" {
		return ProgramIdentity{}, fmt.Errorf("initializeProgram: gateway returned no program identity")
	}
	return out, nil
}

func (c *RPCClient) AppendRecords(ctx context.Context, identity string, start int, records []Line) error {
	params := struct {
		Program string `json:"program"`
		Start   int    `json:"start"`
		Records []Line `json:"records"`
	}{identity, start, records}
	return c.call(ctx, "appendRecords", params, nil)
}

func (c *RPCClient) ReadRawAccount(ctx context.Context, identity string) ([]byte, error) {
	var out struct {
		Data     string `json:"data"`
		Encoding string `json:"encoding"`
	}
	if err := c.call(ctx, "getAccount", map[string]string{"program": identity, "encoding": "base64"}, &out); err != nil {
		return nil, err
	}
	if out.Encoding != "" && out.Encoding != "base64" {
		return nil, fmt.Errorf("getAccount: unsupported encoding %q", out.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("getAccount: invalid account data: %w", err)
	}
	return raw, nil
}

func (c *RPCClient) ReadDecodedAccount(ctx context.Context, identity string) (*AccountInfo, error) {
	var out AccountInfo
	if err := c.call(ctx, "getProgramInfo", map[string]string{"program": identity}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RPCClient) CreatePublisher(ctx context.Context, params PublisherParams) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "createPublisher", params, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", fmt.Errorf("createPublisher: gateway returned no address")
	}
	return out.Address, nil
}

func (c *RPCClient) UpdatePublisher(ctx context.Context, address string, params UpdateParams) error {
	body := struct {
		Address string `json:"address"`
		UpdateParams
	}{address, params}
	return c.call(ctx, "updatePublisher", body, nil)
}

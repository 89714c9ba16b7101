package proofsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/forestrie/go-cmtree/address"
	"github.com/forestrie/go-cmtree/keccak"
)

const (
	jsonRPCVersion      = "2.0"
	methodGetAssetProof = "getAssetProof"

	DefaultRetryMax     = 4
	DefaultRetryWaitMin = 200 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

type DASOptions struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// MaxDepth of the trees served. When zero the depth is taken to be the
	// length of the returned proof, which holds for indexers that always
	// return full proofs.
	MaxDepth   uint32
	HTTPClient *http.Client
}

type DASOption func(*DASOptions)

func WithRetries(retryMax int, waitMin, waitMax time.Duration) DASOption {
	return func(o *DASOptions) {
		o.RetryMax = retryMax
		o.RetryWaitMin = waitMin
		o.RetryWaitMax = waitMax
	}
}

func WithMaxDepth(depth uint32) DASOption {
	return func(o *DASOptions) {
		o.MaxDepth = depth
	}
}

func WithHTTPClient(c *http.Client) DASOption {
	return func(o *DASOptions) {
		o.HTTPClient = c
	}
}

// DASClient fetches asset proofs from a digital asset standard indexer.
type DASClient struct {
	log      logger.Logger
	url      string
	maxDepth uint32
	client   *retryablehttp.Client
}

func NewDASClient(log logger.Logger, url string, opts ...DASOption) *DASClient {
	o := DASOptions{
		RetryMax:     DefaultRetryMax,
		RetryWaitMin: DefaultRetryWaitMin,
		RetryWaitMax: DefaultRetryWaitMax,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = o.RetryMax
	client.RetryWaitMin = o.RetryWaitMin
	client.RetryWaitMax = o.RetryWaitMax
	client.Logger = &leveledLogger{log: log}
	if o.HTTPClient != nil {
		client.HTTPClient = o.HTTPClient
	}

	return &DASClient{log: log, url: url, maxDepth: o.MaxDepth, client: client}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type assetProofResult struct {
	Root      string   `json:"root"`
	Proof     []string `json:"proof"`
	NodeIndex uint64   `json:"node_index"`
	Leaf      string   `json:"leaf"`
	TreeID    string   `json:"tree_id"`
}

func (c *DASClient) GetAssetProof(ctx context.Context, assetID address.Address) (*AssetProof, error) {
	var result assetProofResult
	params := map[string]string{"id": assetID.String()}
	if err := c.call(ctx, methodGetAssetProof, params, &result); err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}
	proof, err := result.decode(c.maxDepth)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}
	return proof, nil
}

func (c *DASClient) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http status %d", ErrBadResponse, method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadResponse, method, err)
	}
	if rr.Error != nil {
		// indexers report unknown assets as rpc errors
		return fmt.Errorf("%w: %s: %d %s", ErrAssetNotFound, method, rr.Error.Code, rr.Error.Message)
	}
	if len(rr.Result) == 0 || string(rr.Result) == "null" {
		return fmt.Errorf("%w: %s: empty result", ErrAssetNotFound, method)
	}
	if err := json.Unmarshal(rr.Result, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadResponse, method, err)
	}
	return nil
}

// decode converts the base58 fields. node_index is the leaf's heap index,
// 2^depth + leafIndex.
func (r assetProofResult) decode(maxDepth uint32) (*AssetProof, error) {
	var err error
	out := &AssetProof{}

	if out.TreeID, err = address.Parse(r.TreeID); err != nil {
		return nil, fmt.Errorf("%w: tree_id: %v", ErrBadResponse, err)
	}
	if out.Root, err = keccak.FromBase58(r.Root); err != nil {
		return nil, fmt.Errorf("%w: root: %v", ErrBadResponse, err)
	}
	if out.Leaf, err = keccak.FromBase58(r.Leaf); err != nil {
		return nil, fmt.Errorf("%w: leaf: %v", ErrBadResponse, err)
	}
	out.Proof = make([]keccak.Hash, len(r.Proof))
	for i, s := range r.Proof {
		if out.Proof[i], err = keccak.FromBase58(s); err != nil {
			return nil, fmt.Errorf("%w: proof[%d]: %v", ErrBadResponse, i, err)
		}
	}

	depth := maxDepth
	if depth == 0 {
		depth = uint32(len(r.Proof))
	}
	if depth == 0 || depth > keccak.MaxSupportedDepth {
		return nil, fmt.Errorf("%w: can not derive depth from proof of length %d", ErrBadResponse, len(r.Proof))
	}
	first := uint64(1) << depth
	if r.NodeIndex < first || r.NodeIndex >= 2*first {
		return nil, fmt.Errorf("%w: node_index %d is not a leaf of a depth %d tree", ErrBadResponse, r.NodeIndex, depth)
	}
	out.LeafIndex = uint32(r.NodeIndex - first)
	return out, nil
}

// leveledLogger routes retryablehttp logging to the service logger.
type leveledLogger struct {
	log logger.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log.Infof("%s %v", msg, keysAndValues)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log.Infof("%s %v", msg, keysAndValues)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Infof("%s %v", msg, keysAndValues)
}

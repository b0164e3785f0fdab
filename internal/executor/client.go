package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Client dispatches swaps to the external settlement service over REST.
type Client struct {
	host       string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

type executeRequest struct {
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	Amount      string `json:"amount"`
	MinOut      string `json:"min_out"`
	ChainID     int64  `json:"chain_id"`
	UserAddress string `json:"user_address"`
}

type executeResponse struct {
	TxHash       string `json:"tx_hash"`
	FilledAmount string `json:"filled_amount"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Error codes the settlement service reports that will not heal on retry.
var permanentCodes = map[string]bool{
	"invalid_address":        true,
	"insufficient_allowance": true,
	"insufficient_balance":   true,
	"contract_revert":        true,
	"unsupported_pair":       true,
}

func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(executeRequest{
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Amount:      req.Amount.String(),
		MinOut:      req.MinOut.String(),
		ChainID:     req.ChainID,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		return nil, Permanent("bad_request", err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, Permanent("bad_request", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts retry on a later tick.
		return nil, Transient("rpc_failure", err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("rpc_failure", err.Error())
	}

	var out executeResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, Transient("bad_response", fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK && out.ErrorCode == "":
		filled, err := decimal.NewFromString(strings.TrimSpace(out.FilledAmount))
		if err != nil {
			return nil, Transient("bad_response", fmt.Sprintf("bad filled_amount %q", out.FilledAmount))
		}
		return &Result{TxHash: out.TxHash, FilledAmount: filled}, nil
	case permanentCodes[out.ErrorCode]:
		return nil, Permanent(out.ErrorCode, out.ErrorMessage)
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && out.ErrorCode != "":
		return nil, Permanent(out.ErrorCode, out.ErrorMessage)
	default:
		msg := out.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
		}
		code := out.ErrorCode
		if code == "" {
			code = "rpc_failure"
		}
		return nil, Transient(code, msg)
	}
}

// DryRun simulates settlement with full fills, for running the engine
// without a live settlement service.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, req Request) (*Result, error) {
	return &Result{
		TxHash:       fmt.Sprintf("0xdryrun%021d", req.ChainID),
		FilledAmount: req.Amount,
	}, nil
}

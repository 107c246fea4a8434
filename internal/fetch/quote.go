package fetch

import (
	"context"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
)

// SwapDeadline is how long a built swap payload stays executable.
const SwapDeadline = 1200 * time.Second

// QuoteClient talks to the Neptune swap aggregator.
type QuoteClient struct {
	upstream
	baseURL string
	now     func() time.Time
}

// NewQuoteClient creates a quote client for baseURL. A nil httpClient gets
// the retrying default; a nil breaker gets a default breaker.
func NewQuoteClient(baseURL string, httpClient *http.Client, breaker *circuitbreaker.CircuitBreaker) *QuoteClient {
	return &QuoteClient{
		upstream: newUpstream("quote", httpClient, breaker),
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
}

// Breaker exposes the breaker guarding the quote service.
func (c *QuoteClient) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

// upstreamQuote mirrors the aggregator's quote object.
type upstreamQuote struct {
	TokenIn      string     `json:"tokenIn"`
	TokenOut     string     `json:"tokenOut"`
	AmountIn     flexString `json:"amountIn"`
	AmountInUSD  flexFloat  `json:"amountInUsd"`
	AmountOut    flexString `json:"amountOut"`
	AmountOutUSD flexFloat  `json:"amountOutUsd"`
	MinAmountOut flexString `json:"minAmountOut"`
	Splits       []struct {
		AmountIn  flexString `json:"amountIn"`
		AmountOut flexString `json:"amountOut"`
		Swaps     []struct {
			TokenIn  string `json:"tokenIn"`
			TokenOut string `json:"tokenOut"`
			Pool     string `json:"pool"`
			Exchange string `json:"exchange"`
		} `json:"swaps"`
	} `json:"splits"`
}

func (q upstreamQuote) normalize() (model.SwapQuote, error) {
	if _, ok := new(big.Int).SetString(string(q.AmountIn), 10); !ok {
		return model.SwapQuote{}, errs.New(errs.KindUpstreamUnavailable, "quote has invalid amountIn %q", q.AmountIn)
	}
	if _, ok := new(big.Int).SetString(string(q.AmountOut), 10); !ok {
		return model.SwapQuote{}, errs.New(errs.KindUpstreamUnavailable, "quote has invalid amountOut %q", q.AmountOut)
	}
	out := model.SwapQuote{
		TokenIn:      common.HexToAddress(q.TokenIn),
		TokenOut:     common.HexToAddress(q.TokenOut),
		AmountIn:     string(q.AmountIn),
		AmountInUSD:  float64(q.AmountInUSD),
		AmountOut:    string(q.AmountOut),
		AmountOutUSD: float64(q.AmountOutUSD),
		MinAmountOut: string(q.MinAmountOut),
	}
	for _, s := range q.Splits {
		split := model.SwapSplit{AmountIn: string(s.AmountIn), AmountOut: string(s.AmountOut)}
		for _, hop := range s.Swaps {
			split.Swaps = append(split.Swaps, model.SwapRoute{
				TokenIn:  common.HexToAddress(hop.TokenIn),
				TokenOut: common.HexToAddress(hop.TokenOut),
				Pool:     hop.Pool,
				Protocol: hop.Exchange,
			})
		}
		out.Splits = append(out.Splits, split)
	}
	return out, nil
}

func (c *QuoteClient) endpoint(path string, q url.Values) (string, error) {
	if c.baseURL == "" {
		return "", errs.New(errs.KindNotConfigured, "quote service base URL is not configured")
	}
	return c.baseURL + path + "?" + q.Encode(), nil
}

// Quote asks for the best route for amountIn base units of tokenIn.
func (c *QuoteClient) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, error) {
	q := url.Values{}
	q.Set("tokenIn", tokenIn.Hex())
	q.Set("tokenOut", tokenOut.Hex())
	q.Set("amountIn", amountIn.String())
	endpoint, err := c.endpoint("/quote", q)
	if err != nil {
		return model.SwapQuote{}, err
	}

	var resp upstreamQuote
	if err := c.getJSON(ctx, "quote", endpoint, &resp); err != nil {
		return model.SwapQuote{}, err
	}
	return resp.normalize()
}

// Swap builds the executable payload for the route, bound to receiver.
// slippage is a fraction ("0.005" for half a percent).
func (c *QuoteClient) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, slippage string, receiver common.Address) (model.SwapTx, error) {
	q := url.Values{}
	q.Set("tokenIn", tokenIn.Hex())
	q.Set("tokenOut", tokenOut.Hex())
	q.Set("amountIn", amountIn.String())
	q.Set("slippage", slippage)
	q.Set("receiver", receiver.Hex())
	q.Set("deadline", strconv.FormatInt(c.now().Add(SwapDeadline).Unix(), 10))
	endpoint, err := c.endpoint("/swap", q)
	if err != nil {
		return model.SwapTx{}, err
	}

	var resp struct {
		Quote upstreamQuote `json:"quote"`
		Tx    struct {
			Data   string `json:"data"`
			Router string `json:"router"`
		} `json:"tx"`
	}
	if err := c.getJSON(ctx, "swap", endpoint, &resp); err != nil {
		return model.SwapTx{}, err
	}

	quote, err := resp.Quote.normalize()
	if err != nil {
		return model.SwapTx{}, err
	}
	if !common.IsHexAddress(resp.Tx.Router) {
		return model.SwapTx{}, errs.New(errs.KindUpstreamUnavailable, "swap payload has invalid router %q", resp.Tx.Router)
	}
	data, err := hexutil.Decode(resp.Tx.Data)
	if err != nil {
		return model.SwapTx{}, errs.Wrap(errs.KindUpstreamUnavailable, err, "swap payload has invalid calldata")
	}
	return model.SwapTx{
		Quote:  quote,
		Router: common.HexToAddress(resp.Tx.Router),
		Data:   data,
	}, nil
}

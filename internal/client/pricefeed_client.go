package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"borrow_engine/internal/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PriceFeedClient defines the interface for the reference price feed API
// used to refresh fallback prices.
type PriceFeedClient interface {
	GetTokenPairsByAddresses(ctx context.Context, feedChainID string, tokenAddresses []string) ([]entity.PairData, error)
}

// priceFeedClientImpl is the implementation of PriceFeedClient.
type priceFeedClientImpl struct {
	client              *fasthttp.Client
	baseURL             string
	timeout             time.Duration
	logger              *zap.Logger
	maxTokensPerRequest int
}

// NewPriceFeedClient creates a new instance of priceFeedClientImpl.
func NewPriceFeedClient(baseURL string, timeout time.Duration, logger *zap.Logger, maxTokensPerRequest int) PriceFeedClient {
	return &priceFeedClientImpl{
		client:              &fasthttp.Client{},
		baseURL:             strings.TrimRight(baseURL, "/"),
		timeout:             timeout,
		logger:              logger.Named("PriceFeedClient"),
		maxTokensPerRequest: maxTokensPerRequest,
	}
}

// GetTokenPairsByAddresses implements the PriceFeedClient interface.
func (c *priceFeedClientImpl) GetTokenPairsByAddresses(ctx context.Context, feedChainID string, tokenAddresses []string) ([]entity.PairData, error) {
	if len(tokenAddresses) == 0 {
		return nil, fmt.Errorf("tokenAddresses cannot be empty")
	}
	if len(tokenAddresses) > c.maxTokensPerRequest {
		c.logger.Warn("Number of token addresses exceeds maxTokensPerRequest",
			zap.Int("requestedCount", len(tokenAddresses)),
			zap.Int("maxAllowed", c.maxTokensPerRequest))
		return nil, fmt.Errorf("number of token addresses (%d) exceeds max tokens per request (%d)", len(tokenAddresses), c.maxTokensPerRequest)
	}

	addresses := strings.Join(tokenAddresses, ",")
	requestURL := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, feedChainID, addresses)

	c.logger.Debug("Requesting token pairs from price feed", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			c.logger.Error("Failed to execute request to price feed", zap.String("url", requestURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			c.logger.Error("Failed to execute request to price feed (with default timeout)", zap.String("url", requestURL), zap.Error(err))
			return nil, fmt.Errorf("failed to execute request to %s with default timeout: %w", requestURL, err)
		}
	}

	rawBody := resp.Body()

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Error("Price feed API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody),
		)
		return nil, fmt.Errorf("price feed API request to %s failed with status %d: %s", requestURL, resp.StatusCode(), string(rawBody))
	}

	var wrapper entity.FeedTokenPair
	if err := json.Unmarshal(rawBody, &wrapper); err == nil && wrapper.Pairs != nil {
		c.logger.Debug("Successfully unmarshalled price feed response (wrapped object)",
			zap.String("feedChainID", feedChainID),
			zap.Int("pairCount", len(wrapper.Pairs)))
		return wrapper.Pairs, nil
	}

	var directPairs []entity.PairData
	if err := json.Unmarshal(rawBody, &directPairs); err != nil {
		c.logger.Error("Failed to unmarshal price feed response into []PairData (also failed as wrapped FeedTokenPair).",
			zap.String("url", requestURL),
			zap.String("feedChainID", feedChainID),
			zap.ByteString("responseBody", rawBody),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to unmarshal price feed response from %s: %w. Body: %s", requestURL, err, string(rawBody))
	}

	if len(directPairs) == 0 {
		c.logger.Warn("Price feed returned 200 OK with an empty array of pairs.",
			zap.String("url", requestURL),
			zap.String("feedChainID", feedChainID))
	}

	return directPairs, nil
}

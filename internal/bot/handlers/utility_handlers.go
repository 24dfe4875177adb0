package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const coingeckoPriceURL = "https://api.coingecko.com/api/v3/simple/price"

func utilityCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "price",
			Category:    CategoryUtility,
			Description: "Look up a cryptocurrency price in USD and BRL",
			Handler:     newPriceHandler(deps),
		},
		{
			Name:        "ask",
			Category:    CategoryUtility,
			Description: "Ask the AI assistant a question",
			Handler:     newAskHandler(deps),
		},
	}
}

func newPriceHandler(deps HandlerDeps) HandlerFunc {
	client := &http.Client{}

	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return Usagef("Usage: %sprice <coin>, e.g. %sprice bitcoin", req.Prefix, req.Prefix)
		}
		coin := strings.ToLower(req.Args[0])

		ctx, cancel := context.WithTimeout(ctx, deps.Config.Commands.RequestTimeout)
		defer cancel()

		query := url.Values{}
		query.Set("ids", coin)
		query.Set("vs_currencies", "usd,brl")

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, coingeckoPriceURL+"?"+query.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to build price request: %w", err)
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("price lookup failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("price lookup failed: status %d", resp.StatusCode)
		}

		var prices map[string]struct {
			USD float64 `json:"usd"`
			BRL float64 `json:"brl"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
			return fmt.Errorf("failed to decode price response: %w", err)
		}

		price, ok := prices[coin]
		if !ok {
			return Usagef("Unknown coin: %s", coin)
		}
		return req.Reply(ctx, fmt.Sprintf("*%s*\nUSD %.2f\nBRL %.2f", coin, price.USD, price.BRL))
	}
}

func newAskHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if deps.GeminiClient == nil {
			return Usagef("The AI assistant is not configured.")
		}
		if req.ArgText == "" {
			return Usagef("Usage: %sask <question>", req.Prefix)
		}

		answer, err := deps.GeminiClient.Ask(ctx, req.ArgText)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		return req.Reply(ctx, answer)
	}
}

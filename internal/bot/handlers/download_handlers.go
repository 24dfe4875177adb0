package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

func downloadCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "image",
			Category:    CategoryDownload,
			Description: "Fetch an image from a URL and post it in the chat",
			Handler:     newImageHandler(deps),
		},
	}
}

func newImageHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return Usagef("Usage: %simage <url> [caption]", req.Prefix)
		}

		rawURL := req.Args[0]
		parsed, err := url.Parse(rawURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return Usagef("Invalid URL: %s", rawURL)
		}
		caption := strings.TrimSpace(strings.TrimPrefix(req.ArgText, rawURL))

		ctx, cancel := context.WithTimeout(ctx, deps.Config.Commands.RequestTimeout)
		defer cancel()

		if err := req.Client.SendImageFromURL(ctx, req.Event.ChatID, rawURL, caption, req.sendOpts()); err != nil {
			return fmt.Errorf("image download failed: %w", err)
		}
		return nil
	}
}

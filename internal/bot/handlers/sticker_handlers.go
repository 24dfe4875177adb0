package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lucasvml/wishbot/internal/whatsapp"
)

func stickerCommands(deps HandlerDeps) []Command {
	return []Command{
		{
			Name:        "sticker",
			Category:    CategorySticker,
			Description: "Convert an attached image into a sticker",
			Handler:     newStickerHandler(deps),
		},
	}
}

func newStickerHandler(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if !req.Event.HasImage() {
			return Usagef("Send an image with %ssticker as the caption.", req.Prefix)
		}
		if err := sendImageAsSticker(ctx, req.Client, req.Event, req.sendOpts()); err != nil {
			return fmt.Errorf("sticker conversion failed: %w", err)
		}
		return nil
	}
}

// sendImageAsSticker downloads the image content of ev and re-sends it as a
// sticker. Only WebP payloads are accepted; other formats need the media
// transcoding pipeline, which is out of scope here.
func sendImageAsSticker(ctx context.Context, client whatsapp.Client, ev *whatsapp.MessageEvent, opts *whatsapp.SendOpts) error {
	data, err := client.DownloadImage(ctx, ev)
	if err != nil {
		return err
	}
	if http.DetectContentType(data) != "image/webp" {
		return &UserError{Reply: "Only WebP images can be turned into stickers."}
	}
	return client.SendSticker(ctx, ev.ChatID, data, opts)
}

// AutoSticker is the fallback applied to unmatched image messages in chats
// with auto-sticker enabled. Unsupported formats are skipped silently.
func AutoSticker(ctx context.Context, client whatsapp.Client, ev *whatsapp.MessageEvent) error {
	data, err := client.DownloadImage(ctx, ev)
	if err != nil {
		return err
	}
	if http.DetectContentType(data) != "image/webp" {
		return nil
	}
	return client.SendSticker(ctx, ev.ChatID, data, whatsapp.ReplyTo(ev))
}

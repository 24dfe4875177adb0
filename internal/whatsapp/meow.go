package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
)

const maxImageDownloadBytes = 16 << 20

// meowClient adapts a whatsmeow client to the Client interface and
// translates raw protocol events into the session's event stream. Outbound
// sends share one rate limiter so bursts (broadcasts, sweep notices) are
// paced.
type meowClient struct {
	wa      *whatsmeow.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	events  chan<- Event
	http    *http.Client
}

func newMeowClient(ctx context.Context, storePath string, sendRate float64, sendBurst int, logger *slog.Logger, events chan<- Event) (*meowClient, error) {
	dbLog := waLog.Stdout("SessionDB", "WARN", true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+storePath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store %s: %w", storePath, err)
	}

	device, err := container.GetFirstDevice(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		device = container.NewDevice()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))
	mc := &meowClient{
		wa:      client,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		logger:  logger.With("component", "whatsapp"),
		events:  events,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	client.AddEventHandler(mc.handleEvent)
	return mc, nil
}

// connect establishes the socket. A device without stored credentials goes
// through QR pairing on the terminal first.
func (c *meowClient) connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open QR channel: %w", err)
		}
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("failed to connect for pairing: %w", err)
		}
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				c.logger.Info("Scan the QR code to pair")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				c.logger.Info("Pairing successful")
				return nil
			case "timeout":
				return errors.New("QR pairing timed out")
			}
		}
		return nil
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *meowClient) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		c.events <- translateMessage(v)

	case *events.GroupInfo:
		for _, ev := range translateGroupInfo(v) {
			c.events <- ev
		}

	case *events.JoinedGroup:
		c.events <- &JoinedGroupEvent{Group: snapshotGroup(&v.GroupInfo)}

	case *events.OfflineSyncCompleted:
		c.events <- &ReadyEvent{}

	case *events.Connected:
		if err := c.wa.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			c.logger.Warn("Failed to send presence", "error", err)
		}

	case *events.LoggedOut:
		c.events <- &DisconnectedEvent{LoggedOut: true}

	case *events.StreamReplaced:
		c.events <- &DisconnectedEvent{}

	case *events.Disconnected:
		c.events <- &DisconnectedEvent{}
	}
}

func translateMessage(v *events.Message) *MessageEvent {
	ev := &MessageEvent{
		ChatID:     v.Info.Chat.String(),
		SenderID:   v.Info.Sender.ToNonAD().String(),
		SenderName: v.Info.PushName,
		MessageID:  v.Info.ID,
		Timestamp:  v.Info.Timestamp,
		IsGroup:    v.Info.IsGroup,
		FromMe:     v.Info.IsFromMe,
		Kind:       KindOther,
	}

	msg := v.Message
	if msg == nil {
		return ev
	}

	switch {
	case msg.GetConversation() != "":
		ev.Kind = KindText
		ev.Text = msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		ev.Kind = KindText
		ev.Text = msg.GetExtendedTextMessage().GetText()
		ev.Expiration = msg.GetExtendedTextMessage().GetContextInfo().GetExpiration()
	case msg.GetImageMessage() != nil:
		ev.Kind = KindImage
		ev.Text = msg.GetImageMessage().GetCaption()
		ev.Expiration = msg.GetImageMessage().GetContextInfo().GetExpiration()
		ev.image = msg.GetImageMessage()
	case msg.GetVideoMessage() != nil:
		ev.Kind = KindVideo
		ev.Text = msg.GetVideoMessage().GetCaption()
		ev.Expiration = msg.GetVideoMessage().GetContextInfo().GetExpiration()
	case msg.GetAudioMessage() != nil:
		ev.Kind = KindAudio
	case msg.GetStickerMessage() != nil:
		ev.Kind = KindSticker
	case msg.GetDocumentMessage() != nil:
		ev.Kind = KindDocument
		ev.Text = msg.GetDocumentMessage().GetCaption()
	}
	return ev
}

// translateGroupInfo splits one protocol group notification into the
// metadata and membership events it carries.
func translateGroupInfo(v *events.GroupInfo) []Event {
	groupID := v.JID.String()
	var out []Event

	meta := &GroupMetaEvent{GroupID: groupID}
	hasMeta := false
	if v.Topic != nil {
		meta.Description = &v.Topic.Topic
		hasMeta = true
	}
	if v.Name != nil {
		meta.Name = &v.Name.Name
		hasMeta = true
	}
	if v.Announce != nil {
		meta.Restricted = &v.Announce.IsAnnounce
		hasMeta = true
	}
	if v.Ephemeral != nil {
		meta.Expiration = &v.Ephemeral.DisappearingTimer
		hasMeta = true
	}
	if hasMeta {
		out = append(out, meta)
	}

	appendMembers := func(action MemberAction, jids []types.JID) {
		if len(jids) == 0 {
			return
		}
		ids := make([]string, 0, len(jids))
		for _, j := range jids {
			ids = append(ids, j.ToNonAD().String())
		}
		out = append(out, &MemberEvent{
			GroupID:   groupID,
			Action:    action,
			UserIDs:   ids,
			Timestamp: v.Timestamp,
		})
	}
	appendMembers(MemberAdd, v.Join)
	appendMembers(MemberRemove, v.Leave)
	appendMembers(MemberPromote, v.Promote)
	appendMembers(MemberDemote, v.Demote)

	return out
}

func snapshotGroup(info *types.GroupInfo) GroupSnapshot {
	snap := GroupSnapshot{
		ID:          info.JID.String(),
		Name:        info.Name,
		Description: info.Topic,
		OwnerID:     info.OwnerJID.ToNonAD().String(),
		Restricted:  info.IsAnnounce,
		Expiration:  info.DisappearingTimer,
	}
	for _, p := range info.Participants {
		snap.Members = append(snap.Members, MemberSnapshot{
			ID:    p.JID.ToNonAD().String(),
			Admin: p.IsAdmin || p.IsSuperAdmin,
		})
	}
	return snap
}

func (c *meowClient) BotID() string {
	if c.wa.Store.ID == nil {
		return ""
	}
	return c.wa.Store.ID.ToNonAD().String()
}

func (c *meowClient) IsConnected() bool {
	return c.wa.IsConnected()
}

func (c *meowClient) Disconnect() {
	c.wa.Disconnect()
}

func parseJID(id string) (types.JID, error) {
	j, err := types.ParseJID(id)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid jid %q: %w", id, err)
	}
	return j, nil
}

// contextInfo builds the reply/ephemeral context for an outbound message.
// Returns nil when there is nothing to attach.
func contextInfo(opts *SendOpts, mentions []string) *waE2E.ContextInfo {
	if opts == nil && len(mentions) == 0 {
		return nil
	}

	info := &waE2E.ContextInfo{MentionedJID: mentions}
	if opts == nil {
		return info
	}
	if opts.Expiration > 0 {
		info.Expiration = proto.Uint32(opts.Expiration)
	}
	if opts.QuotedID != "" {
		info.StanzaID = proto.String(opts.QuotedID)
		info.Participant = proto.String(opts.QuotedSender)
		info.QuotedMessage = &waE2E.Message{Conversation: proto.String(opts.QuotedText)}
	}
	if info.Expiration == nil && info.StanzaID == nil && len(info.MentionedJID) == 0 {
		return nil
	}
	return info
}

func (c *meowClient) send(ctx context.Context, chatID string, msg *waE2E.Message) error {
	to, err := parseJID(chatID)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.wa.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", chatID, err)
	}
	return nil
}

func (c *meowClient) SendText(ctx context.Context, chatID, text string, opts *SendOpts) error {
	info := contextInfo(opts, nil)
	if info == nil {
		return c.send(ctx, chatID, &waE2E.Message{Conversation: proto.String(text)})
	}
	return c.send(ctx, chatID, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: info,
		},
	})
}

func (c *meowClient) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []string, opts *SendOpts) error {
	return c.send(ctx, chatID, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: contextInfo(opts, mentions),
		},
	})
}

func (c *meowClient) SendImageFromURL(ctx context.Context, chatID, url, caption string, opts *SendOpts) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch image %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageDownloadBytes))
	if err != nil {
		return fmt.Errorf("failed to read image body: %w", err)
	}

	uploaded, err := c.wa.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return c.send(ctx, chatID, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
			ContextInfo:   contextInfo(opts, nil),
		},
	})
}

func (c *meowClient) SendSticker(ctx context.Context, chatID string, webpData []byte, opts *SendOpts) error {
	uploaded, err := c.wa.Upload(ctx, webpData, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload sticker: %w", err)
	}

	return c.send(ctx, chatID, &waE2E.Message{
		StickerMessage: &waE2E.StickerMessage{
			Mimetype:      proto.String("image/webp"),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
			ContextInfo:   contextInfo(opts, nil),
		},
	})
}

func (c *meowClient) DownloadImage(ctx context.Context, ev *MessageEvent) ([]byte, error) {
	if ev == nil || ev.image == nil {
		return nil, errors.New("message has no image content")
	}
	data, err := c.wa.Download(ctx, ev.image)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}

func (c *meowClient) updateParticipant(ctx context.Context, groupID, userID string, change whatsmeow.ParticipantChange) error {
	group, err := parseJID(groupID)
	if err != nil {
		return err
	}
	user, err := parseJID(userID)
	if err != nil {
		return err
	}
	if _, err := c.wa.UpdateGroupParticipants(ctx, group, []types.JID{user}, change); err != nil {
		return fmt.Errorf("failed to %s %s in %s: %w", change, userID, groupID, err)
	}
	return nil
}

func (c *meowClient) AddParticipant(ctx context.Context, groupID, userID string) error {
	return c.updateParticipant(ctx, groupID, userID, whatsmeow.ParticipantChangeAdd)
}

func (c *meowClient) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	return c.updateParticipant(ctx, groupID, userID, whatsmeow.ParticipantChangeRemove)
}

func (c *meowClient) PromoteParticipant(ctx context.Context, groupID, userID string) error {
	return c.updateParticipant(ctx, groupID, userID, whatsmeow.ParticipantChangePromote)
}

func (c *meowClient) DemoteParticipant(ctx context.Context, groupID, userID string) error {
	return c.updateParticipant(ctx, groupID, userID, whatsmeow.ParticipantChangeDemote)
}

func (c *meowClient) FetchAllGroups(ctx context.Context) ([]GroupSnapshot, error) {
	groups, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch joined groups: %w", err)
	}

	snapshots := make([]GroupSnapshot, 0, len(groups))
	for _, info := range groups {
		snapshots = append(snapshots, snapshotGroup(info))
	}
	return snapshots, nil
}

func (c *meowClient) GroupInviteLink(ctx context.Context, groupID string, reset bool) (string, error) {
	group, err := parseJID(groupID)
	if err != nil {
		return "", err
	}
	link, err := c.wa.GetGroupInviteLink(ctx, group, reset)
	if err != nil {
		return "", fmt.Errorf("failed to get invite link for %s: %w", groupID, err)
	}
	return link, nil
}

func (c *meowClient) LeaveGroup(ctx context.Context, groupID string) error {
	group, err := parseJID(groupID)
	if err != nil {
		return err
	}
	if err := c.wa.LeaveGroup(ctx, group); err != nil {
		return fmt.Errorf("failed to leave group %s: %w", groupID, err)
	}
	return nil
}

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/enums"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/markup"
	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/pkg/validate"
)

type Bot struct {
	api *tgbotapi.BotAPI
}

type MessageUpdate struct {
	ChatID      int64
	UserID      int64
	Username    string
	DisplayName string
	MessageID   int
	Text        string
	IsGroup     bool
}

type CommandUpdate struct {
	ChatID      int64
	UserID      int64
	Username    string
	Command     string
	Args        string
	IsGroup     bool
	SenderAdmin bool
}

type MemberUpdate struct {
	ChatID     int64
	UserID     int64
	ReferrerID int64
	NewStatus  enums.MemberStatus
}

type CallbackUpdate struct {
	CallbackID  string
	ChatID      int64
	UserID      int64
	DisplayName string
	Data        string
}

type Handlers struct {
	OnMessage  func(context.Context, MessageUpdate)
	OnCommand  func(context.Context, CommandUpdate) error
	OnMember   func(context.Context, MemberUpdate)
	OnCallback func(context.Context, CallbackUpdate)
}

func NewBot(token string) (*Bot, error) {
	if !validate.Required(token) {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api}, nil
}

// Listen runs the long-poll loop and fans updates out to the handlers.
// Message, member and callback handlers are expected to be non-blocking
// entry points; only command handling is synchronous.
func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	// chat_member updates are only delivered when asked for explicitly.
	updateCfg.AllowedUpdates = []string{"message", "chat_member", "callback_query"}
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			if update.Message != nil && update.Message.From != nil {
				msg := update.Message
				isGroup := msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()

				if msg.IsCommand() && handlers.OnCommand != nil {
					admin := false
					if isGroup {
						admin = b.isChatAdmin(msg.Chat.ID, msg.From.ID)
					}
					if err := handlers.OnCommand(ctx, CommandUpdate{
						ChatID:      msg.Chat.ID,
						UserID:      msg.From.ID,
						Username:    msg.From.UserName,
						Command:     msg.Command(),
						Args:        msg.CommandArguments(),
						IsGroup:     isGroup,
						SenderAdmin: admin,
					}); err != nil {
						return err
					}
					continue
				}

				if handlers.OnMessage != nil {
					handlers.OnMessage(ctx, MessageUpdate{
						ChatID:      msg.Chat.ID,
						UserID:      msg.From.ID,
						Username:    msg.From.UserName,
						DisplayName: displayName(msg.From),
						MessageID:   msg.MessageID,
						Text:        msg.Text,
						IsGroup:     isGroup,
					})
				}
				continue
			}

			if update.ChatMember != nil && handlers.OnMember != nil {
				cm := update.ChatMember
				var referrerID int64
				if cm.InviteLink != nil {
					referrerID = cm.InviteLink.Creator.ID
				}
				handlers.OnMember(ctx, MemberUpdate{
					ChatID:     cm.Chat.ID,
					UserID:     cm.NewChatMember.User.ID,
					ReferrerID: referrerID,
					NewStatus:  enums.MemberStatus(cm.NewChatMember.Status),
				})
				continue
			}

			if update.CallbackQuery != nil && handlers.OnCallback != nil {
				cb := update.CallbackQuery
				var chatID int64
				if cb.Message != nil {
					chatID = cb.Message.Chat.ID
				}
				handlers.OnCallback(ctx, CallbackUpdate{
					CallbackID:  cb.ID,
					ChatID:      chatID,
					UserID:      cb.From.ID,
					DisplayName: displayName(cb.From),
					Data:        cb.Data,
				})
			}
		}
	}
}

// SendNotice sends a chat message with optional inline buttons and returns
// the platform message id for later deletion.
func (b *Bot) SendNotice(_ context.Context, chatID int64, text string, buttons []markup.Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, btn := range buttons {
			var kb tgbotapi.InlineKeyboardButton
			if btn.URL != "" {
				kb = tgbotapi.NewInlineKeyboardButtonURL(btn.Label, btn.URL)
			} else {
				kb = tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data)
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(kb))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send notice: %w", err)
	}

	return sent.MessageID, nil
}

func (b *Bot) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// MuteMember removes all send permissions until the given time.
func (b *Bot) MuteMember(_ context.Context, chatID, userID int64, until time.Time) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        until.Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("mute member: %w", err)
	}
	return nil
}

// RestrictSending blocks messages indefinitely, until the gate is lifted.
func (b *Bot) RestrictSending(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("restrict member: %w", err)
	}
	return nil
}

func (b *Bot) LiftRestrictions(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("lift restrictions: %w", err)
	}
	return nil
}

func (b *Bot) CreateInviteLink(_ context.Context, chatID int64, memberLimit int) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		MemberLimit: memberLimit,
	}

	resp, err := b.api.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("parse invite link response: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("empty invite link in response")
	}

	return link.InviteLink, nil
}

// UserBio reads the user's profile biography. Users with no bio yield an
// empty string, not an error.
func (b *Bot) UserBio(_ context.Context, userID int64) (string, error) {
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("get user bio: %w", err)
	}
	return chat.Bio, nil
}

// ChannelMemberStatus resolves the user's membership in a required channel
// given as @username or a numeric id string.
func (b *Bot) ChannelMemberStatus(_ context.Context, channel string, userID int64) (enums.MemberStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID},
	}
	if strings.HasPrefix(channel, "@") {
		cfg.SuperGroupUsername = channel
	} else {
		var chatID int64
		if _, err := fmt.Sscanf(channel, "%d", &chatID); err != nil {
			return "", fmt.Errorf("invalid channel identifier %q", channel)
		}
		cfg.ChatID = chatID
	}

	member, err := b.api.GetChatMember(cfg)
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}

	return enums.MemberStatus(member.Status), nil
}

func (b *Bot) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SendText is the plain-reply helper for the command surface.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (b *Bot) isChatAdmin(chatID, userID int64) bool {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false
	}
	return member.Status == "creator" || member.Status == "administrator"
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		return fmt.Sprintf("user %d", user.ID)
	}
	return name
}

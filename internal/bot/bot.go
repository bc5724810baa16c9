// Package bot is the conversational front-end: customers place orders and
// check status through a multi-turn chat flow instead of the web form.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-courier/internal/cache"
	"doc-courier/internal/model"
	"doc-courier/internal/orders"
	"doc-courier/internal/pricing"
)

const (
	conversationTTL = 30 * time.Minute
	linkCodeTTL     = 5 * time.Minute
)

type AccountStore interface {
	GetAccountByChatID(ctx context.Context, chatID int64) (*model.Account, error)
	CreateAccount(ctx context.Context, a *model.Account) (*model.Account, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	accounts AccountStore
	engine   *orders.Engine
	states   *cache.Cache
	log      *slog.Logger
}

func New(api *tgbotapi.BotAPI, accounts AccountStore, engine *orders.Engine, states *cache.Cache, log *slog.Logger) *Bot {
	return &Bot{api: api, accounts: accounts, engine: engine, states: states, log: log}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func stateKey(chatID int64) string {
	return fmt.Sprintf("conv:%d", chatID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg.Command(), msg.CommandArguments())
		return
	}

	v, ok := b.states.Get(stateKey(chatID))
	if !ok {
		b.reply(chatID, "Use /neworder to place an order or /help for commands.")
		return
	}

	next, replyText, req := advance(v.(state), msg.Text)
	switch {
	case req != nil:
		b.states.Delete(stateKey(chatID))
		b.placeOrder(ctx, chatID, *req)
	case next == nil:
		b.states.Delete(stateKey(chatID))
		b.reply(chatID, replyText)
	default:
		b.states.Put(stateKey(chatID), next, conversationTTL)
		b.reply(chatID, replyText)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command, args string) {
	switch command {
	case "start", "help":
		b.reply(chatID, "Document courier commands:\n"+
			"/neworder - place a delivery order\n"+
			"/status - your recent orders\n"+
			"/balance - prepaid balance\n"+
			"/link <login> - link this chat to a web account\n"+
			"/cancel - abandon the current form")
		if _, err := b.account(ctx, chatID); err != nil {
			b.log.Warn("account bootstrap failed", "chat_id", chatID, "error", err)
		}

	case "neworder":
		b.states.Put(stateKey(chatID), state(awaitDescription{}), conversationTTL)
		b.reply(chatID, promptDescription)

	case "cancel":
		b.states.Delete(stateKey(chatID))
		b.reply(chatID, "Cancelled.")

	case "status":
		b.sendStatus(ctx, chatID)

	case "balance":
		account, err := b.account(ctx, chatID)
		if err != nil {
			b.reply(chatID, "Could not load your account, try again later.")
			return
		}
		b.reply(chatID, "Balance: "+account.Balance.StringFixed(2))

	case "link":
		b.sendLinkCode(chatID, strings.TrimSpace(args))

	default:
		b.reply(chatID, "Unknown command, see /help.")
	}
}

// account fetches the chat's account, creating one on first contact.
func (b *Bot) account(ctx context.Context, chatID int64) (*model.Account, error) {
	account, err := b.accounts.GetAccountByChatID(ctx, chatID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}
	return b.accounts.CreateAccount(ctx, &model.Account{
		Login:  fmt.Sprintf("tg:%d", chatID),
		ChatID: chatID,
	})
}

func (b *Bot) placeOrder(ctx context.Context, chatID int64, req orders.CreateRequest) {
	account, err := b.account(ctx, chatID)
	if err != nil {
		b.reply(chatID, "Could not load your account, try again later.")
		return
	}

	order, err := b.engine.Create(ctx, account.ID, req)
	if err != nil {
		b.reply(chatID, orderErrorReply(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Order %s placed. Total: %s. Balance: %s.",
		order.Number, order.TotalCost.StringFixed(2),
		account.Balance.Sub(order.TotalCost).StringFixed(2)))
}

func orderErrorReply(err error) string {
	var insErr *model.InsufficientBalanceError
	switch {
	case errors.As(err, &insErr):
		return fmt.Sprintf("Not enough balance: this order costs %s, you have %s. Top up first.",
			insErr.Required.StringFixed(2), insErr.Available.StringFixed(2))
	case errors.Is(err, pricing.ErrBelowMinimumQuantity):
		return "Document orders need at least 3 documents."
	case errors.Is(err, orders.ErrTooManyActiveOrders):
		return "You already have too many orders in progress. Wait for one to finish."
	case errors.Is(err, orders.ErrInvalidRequest):
		return "Something in the order was invalid: " + err.Error()
	default:
		return "Could not place the order, try again later."
	}
}

func (b *Bot) sendStatus(ctx context.Context, chatID int64) {
	account, err := b.account(ctx, chatID)
	if err != nil {
		b.reply(chatID, "Could not load your account, try again later.")
		return
	}

	list, err := b.engine.List(ctx, model.OrderFilter{AccountID: &account.ID})
	if err != nil {
		b.reply(chatID, "Could not load your orders, try again later.")
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "No orders yet. Use /neworder to place one.")
		return
	}

	const limit = 5
	var sb strings.Builder
	sb.WriteString("Your recent orders:\n")
	for i, o := range list {
		if i == limit {
			break
		}
		fmt.Fprintf(&sb, "%s - %s (%s)\n", o.Number, o.Status, o.TotalCost.StringFixed(2))
	}
	b.reply(chatID, sb.String())
}

// sendLinkCode hands out a one-shot code a logged-in web user can submit to
// bind this chat to their account for notifications.
func (b *Bot) sendLinkCode(chatID int64, login string) {
	if login == "" {
		b.reply(chatID, "Usage: /link <your web login>")
		return
	}
	code := fmt.Sprintf("%06d", rand.Intn(1_000_000))
	b.states.Put("link:"+login, model.ChatLink{Code: code, ChatID: chatID}, linkCodeTTL)
	b.reply(chatID, fmt.Sprintf("Your link code is %s. Enter it in the web app within 5 minutes.", code))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("bot send failed", "chat_id", chatID, "error", err)
	}
}

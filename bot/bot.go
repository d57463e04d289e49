package bot

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/m4xw311/codexgram/codex"
	"github.com/m4xw311/codexgram/errors"
	"github.com/m4xw311/codexgram/store"
)

// Bot wires the Telegram transport to the turn engine and the state store.
// One Bot serves one allowed user across any number of chats; each chat runs
// at most one turn at a time.
type Bot struct {
	api           *tgbotapi.BotAPI
	store         *store.Store
	runner        *codex.Runner
	registry      *ChatRegistry
	watcher       *store.Watcher
	allowedUserID int64
	logger        *zap.Logger

	turns sync.WaitGroup
}

// Options configures a Bot.
type Options struct {
	Token         string
	AllowedUserID int64
	Store         *store.Store
	Runner        *codex.Runner
	// Watcher, when set, runs alongside the update loop.
	Watcher *store.Watcher
	Logger  *zap.Logger
}

// New connects to the Telegram Bot API and prepares the update handlers.
func New(opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to Telegram")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:           api,
		store:         opts.Store,
		runner:        opts.Runner,
		registry:      NewChatRegistry(),
		watcher:       opts.Watcher,
		allowedUserID: opts.AllowedUserID,
		logger:        logger,
	}, nil
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// turns to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", zap.String("username", b.api.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	g, ctx := errgroup.WithContext(ctx)
	if b.watcher != nil {
		g.Go(func() error {
			err := b.watcher.Run(ctx)
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		defer b.turns.Wait()
		for {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return nil
			case update, ok := <-updates:
				if !ok {
					return nil
				}
				b.handleUpdate(ctx, update)
			}
		}
	})
	return g.Wait()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.From == nil || msg.From.ID != b.allowedUserID {
		b.reply(msg, "Unauthorized user.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	b.handleInstruction(ctx, msg)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		b.reply(msg, "Codex bot is ready. Send me instructions and I'll reply with the result.")
	case "help":
		b.reply(msg, helpText)
	case "reset":
		b.handleReset(msg, args)
	case "project":
		b.handleProject(msg, args)
	default:
		b.reply(msg, "Unknown command. Try /help.")
	}
}

const helpText = `Commands:
/start - Intro
/help - This help
/reset - Reset the current conversation context
/reset all - Reset every conversation context for this chat
/project - Manage projects (see /project help)

Send any instruction as a normal message.`

func (b *Bot) handleReset(msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	all := strings.EqualFold(args, "all")
	project := b.store.GetCurrentProject(chatID)
	if err := b.store.ResetThreadID(chatID, project, all); err != nil {
		b.reply(msg, "Error: "+err.Error())
		return
	}
	if all {
		b.reply(msg, "All conversation contexts reset.")
		return
	}
	b.reply(msg, "Conversation context reset.")
}

// handleInstruction runs one turn for a plain-text message. The turn runs on
// its own goroutine so other chats stay responsive; the registry rejects a
// second instruction for the same chat while one is in flight.
func (b *Bot) handleInstruction(ctx context.Context, msg *tgbotapi.Message) {
	instruction := strings.TrimSpace(msg.Text)
	if instruction == "" {
		return
	}

	chatID := msg.Chat.ID
	if !b.registry.TryAcquire(chatID) {
		b.reply(msg, "I'm already working on your last request.")
		return
	}

	b.turns.Add(1)
	go func() {
		defer b.turns.Done()
		defer b.registry.Release(chatID)
		b.runTurn(ctx, msg, instruction)
	}()
}

func (b *Bot) runTurn(ctx context.Context, msg *tgbotapi.Message, instruction string) {
	chatID := msg.Chat.ID
	b.sendTyping(chatID)

	projectPath := b.store.GetCurrentProject(chatID)
	threadID := b.store.GetThreadID(chatID, projectPath)

	result, err := b.runner.RunTurn(ctx, codex.TurnRequest{
		Instruction: instruction,
		ThreadID:    threadID,
		WorkingDir:  projectPath,
		Progress: func(label string) {
			b.send(chatID, label)
		},
	})
	if err != nil {
		b.logger.Warn("turn failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.reply(msg, "Error: "+err.Error())
		return
	}

	// The thread id is recorded only after a confirmed successful turn.
	if err := b.store.SetThreadID(chatID, result.ThreadID, projectPath); err != nil {
		b.logger.Warn("could not persist thread id", zap.Error(err))
	}
	b.logger.Info("turn completed",
		zap.Int64("chat_id", chatID),
		zap.String("thread_id", result.ThreadID),
		zap.String("log", result.LogPath))

	reply := strings.TrimSpace(result.Reply)
	if reply == "" {
		reply = "No response produced."
	}
	for _, chunk := range SplitMessage(reply, MessageLimit) {
		b.send(chatID, chunk)
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warn("could not send reply", zap.Error(err))
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("could not send message", zap.Error(err))
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("could not send typing action", zap.Error(err))
	}
}

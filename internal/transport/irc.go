package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"
	"talkbot/internal"
	"talkbot/internal/config"
	"talkbot/internal/conversation"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

// ircWriter is the part of *irc.Client the handlers use.
type ircWriter interface {
	Writef(format string, args ...interface{}) error
	CurrentNick() string
}

// IRC serves conversations in channels and private messages. Every nick gets
// its own session per channel.
type IRC struct {
	cfg     config.IRCConfig
	runner  Runner
	mailbox *Mailbox
	ctx     context.Context

	mu sync.Mutex
	// writer is the live client; replaced on every reconnect.
	writer ircWriter
}

func NewIRC(cfg config.IRCConfig, runner Runner) *IRC {
	return &IRC{
		cfg:     cfg,
		runner:  runner,
		mailbox: NewMailbox(),
		ctx:     context.Background(),
	}
}

// Run connects and reconnects until ctx is cancelled.
func (b *IRC) Run(ctx context.Context) error {
	b.ctx = ctx
	defer b.mailbox.StopAll()

	reconnectDelay := time.Duration(internal.DEFAULT_RECONNECT_DELAY) * time.Second
	connectionTimeout := time.Duration(internal.DEFAULT_CONNECT_TIMEOUT) * time.Second

	for {
		select {
		case <-ctx.Done():
			logger.Infof("Exiting connection loop due to shutdown signal.")
			return nil
		default:
		}

		logger.Infof("Attempting to connect to IRC server at %s...", b.cfg.Server)

		connectCtx, connectCancel := context.WithTimeout(ctx, connectionTimeout)
		dialer := net.Dialer{}
		conn, err := dialer.DialContext(connectCtx, "tcp", b.cfg.Server)
		connectCancel()

		if err != nil {
			logger.Errorf("Failed to connect: %v. Retrying in %s...", err, reconnectDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
				continue
			}
		}

		client := irc.NewClient(conn, irc.ClientConfig{
			Nick: b.cfg.Nick,
			User: b.cfg.User,
			Name: b.cfg.RealName,
			Handler: irc.HandlerFunc(func(c *irc.Client, m *irc.Message) {
				b.handleMessage(c, m)
			}),
		})

		runErrCh := make(chan error, 1)
		go func() {
			runErrCh <- client.Run()
		}()

		select {
		case <-ctx.Done():
			logger.Infof("Shutdown requested, closing connection.")
			conn.Close()
			if err := <-runErrCh; err != nil && ctx.Err() == nil {
				logger.Errorf("client.Run terminated with error: %v", err)
			}
			return nil
		case err := <-runErrCh:
			if err != nil {
				logger.Errorf("IRC client disconnected: %v", err)
			}
		}

		conn.Close()
		logger.Warnf("Reconnecting in %s...", reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *IRC) setWriter(c ircWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer = c
}

func (b *IRC) currentWriter() ircWriter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writer
}

func (b *IRC) handleMessage(c ircWriter, m *irc.Message) {
	b.setWriter(c)

	switch m.Command {
	case internal.RPL_WELCOME:
		logger.Successf(">> Welcome message received: %s", m.Trailing())
		if b.cfg.Password != "" {
			if err := c.Writef("%s NickServ :IDENTIFY %s", internal.CMD_PRIVMSG, b.cfg.Password); err != nil {
				logger.Errorf(">> Error identifying with NickServ: %v", err)
			}
		}
	case internal.RPL_ENDOFMOTD, internal.ERR_NOMOTD:
		for _, channel := range b.cfg.Channels {
			if err := c.Writef("%s %s", internal.CMD_JOIN, channel); err != nil {
				logger.Errorf(">> Error joining channel %s: %v", channel, err)
			} else {
				logger.Successf(">> Joining channel: %s", channel)
			}
		}
	case internal.ERR_NICKNAMEINUSE:
		logger.Warnf(">> Nickname in use: %s", m.Trailing())
	case internal.CMD_PING:
		if err := c.Writef("%s :%s", internal.CMD_PONG, m.Trailing()); err != nil {
			logger.Errorf(">> Error sending PONG: %v", err)
		}
	case internal.CMD_PRIVMSG:
		b.handlePrivmsg(c, m)
	case internal.CMD_ERROR:
		logger.Errorf(">> Server error: %s", m.Trailing())
	}
}

func (b *IRC) handlePrivmsg(c ircWriter, m *irc.Message) {
	if m.Prefix == nil || len(m.Params) == 0 {
		return
	}
	nick := m.Prefix.Name
	target := m.Params[0]
	private := strings.EqualFold(target, c.CurrentNick())
	if private {
		target = nick
	}

	text := strings.TrimSpace(m.Trailing())
	prefix := b.cfg.CommandPrefix
	if !strings.HasPrefix(text, prefix) {
		return
	}
	command, args, _ := strings.Cut(strings.TrimPrefix(text, prefix), " ")
	args = strings.TrimSpace(args)
	key := strings.ToLower(target + "/" + nick)

	switch strings.ToLower(command) {
	case "talk":
		if args == "" {
			b.say(c, target, nick, fmt.Sprintf("Usage: %stalk <purpose>", prefix))
			return
		}
		human := &ircHuman{
			mailboxReplies: mailboxReplies{key: key, mailbox: b.mailbox},
			irc:            b,
			target:         target,
			nick:           nick,
		}
		err := startSession(b.ctx, b.mailbox, b.runner, key, human, args, func(res conversation.Result, err error) {
			if err != nil {
				b.say(b.currentWriter(), target, nick, "The conversation stopped: "+err.Error())
				return
			}
			b.say(b.currentWriter(), target, nick, fmt.Sprintf("Conversation closed after %d turns (%s).", res.State.TurnCount, res.Reason))
		})
		if err != nil {
			b.say(c, target, nick, err.Error()+fmt.Sprintf(". Use %sstop to end it.", prefix))
			return
		}
		logger.Infof(">> %s started a conversation in %s", nick, target)
		b.say(c, target, nick, "Working on it.")
	case "reply":
		if err := b.mailbox.Post(key, args); err != nil {
			b.say(c, target, nick, err.Error()+".")
		}
	case "stop":
		if err := b.mailbox.Stop(key); err != nil {
			b.say(c, target, nick, err.Error()+".")
		}
	}
}

// say sends text to target, addressed to nick in channels.
func (b *IRC) say(c ircWriter, target, nick, text string) {
	if c == nil {
		return
	}
	for _, chunk := range splitForIRC(text, internal.IRC_MAX_MESSAGE_LENGTH) {
		line := chunk
		if !strings.EqualFold(target, nick) {
			line = nick + ": " + chunk
		}
		if err := c.Writef("%s %s :%s", internal.CMD_PRIVMSG, target, line); err != nil {
			logger.Errorf(">> Error sending to %s: %v", target, err)
			return
		}
	}
}

type ircHuman struct {
	mailboxReplies
	irc    *IRC
	target string
	nick   string
}

func (h *ircHuman) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	h.irc.say(h.irc.currentWriter(), h.target, h.nick, msg.Message)
	return nil
}

func (h *ircHuman) Await(ctx context.Context) (string, error) {
	h.irc.say(h.irc.currentWriter(), h.target, h.nick, fmt.Sprintf("(answer with %sreply <text>)", h.irc.cfg.CommandPrefix))
	return h.mailboxReplies.Await(ctx)
}

func (h *ircHuman) DeliverSummary(ctx context.Context, report string) error {
	h.irc.say(h.irc.currentWriter(), h.target, h.nick, "Summary: "+report)
	return nil
}

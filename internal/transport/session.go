// Package transport connects humans to conversation sessions over a
// terminal, IRC, Telegram or a WebSocket.
package transport

import (
	"context"

	"talkbot/internal/conversation"
	"talkbot/internal/logger"
)

// Runner runs one conversation. *conversation.Runner implements it.
type Runner interface {
	Run(ctx context.Context, human conversation.Human, purpose string) (conversation.Result, error)
}

// startSession runs a conversation for key in the background. done, if set,
// is called after the session ends and its mailbox slot is released.
func startSession(parent context.Context, mb *Mailbox, runner Runner, key string, human conversation.Human, purpose string, done func(conversation.Result, error)) error {
	ctx, cancel := context.WithCancel(parent)
	if err := mb.Open(key, cancel); err != nil {
		cancel()
		return err
	}

	go func() {
		defer cancel()
		res, err := runner.Run(ctx, human, purpose)
		mb.Close(key)
		if err != nil {
			logger.Warnf("Conversation for %s ended with error: %v", key, err)
		}
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

// mailboxReplies implements Human.Await on top of a mailbox slot.
type mailboxReplies struct {
	key     string
	mailbox *Mailbox
}

func (r mailboxReplies) Await(ctx context.Context) (string, error) {
	return r.mailbox.Await(ctx, r.key)
}

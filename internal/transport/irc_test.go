package transport

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/irc.v4"
	"talkbot/internal/config"
)

type fakeIRCWriter struct {
	mu    sync.Mutex
	nick  string
	lines []string
}

func (w *fakeIRCWriter) Writef(format string, args ...interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
	return nil
}

func (w *fakeIRCWriter) CurrentNick() string { return w.nick }

func (w *fakeIRCWriter) sent() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

func (w *fakeIRCWriter) contains(s string) bool {
	for _, line := range w.sent() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func newTestIRC(runner Runner) *IRC {
	return NewIRC(config.IRCConfig{
		Nick:          "talkbot",
		Password:      "secret",
		Channels:      []string{"#a", "#b"},
		CommandPrefix: "!",
	}, runner)
}

func feed(t *testing.T, b *IRC, w *fakeIRCWriter, line string) {
	t.Helper()
	m, err := irc.ParseMessage(line)
	require.NoError(t, err)
	b.handleMessage(w, m)
}

func TestIRCRegistration(t *testing.T) {
	w := &fakeIRCWriter{nick: "talkbot"}
	b := newTestIRC(&askingRunner{})

	feed(t, b, w, ":server 001 talkbot :Welcome")
	feed(t, b, w, ":server 376 talkbot :End of MOTD")
	feed(t, b, w, "PING :abc")

	assert.Equal(t, []string{
		"PRIVMSG NickServ :IDENTIFY secret",
		"JOIN #a",
		"JOIN #b",
		"PONG :abc",
	}, w.sent())
}

func TestIRCChannelConversation(t *testing.T) {
	w := &fakeIRCWriter{nick: "talkbot"}
	b := newTestIRC(&askingRunner{question: "Which language?"})

	feed(t, b, w, ":alice!a@host PRIVMSG #a :!talk build a parser")
	require.Eventually(t, func() bool { return w.contains("(answer with !reply <text>)") }, time.Second, time.Millisecond)
	assert.True(t, w.contains("PRIVMSG #a :alice: Which language?"))

	// bob has no session in #a
	feed(t, b, w, ":bob!b@host PRIVMSG #a :!reply Go")
	assert.True(t, w.contains("PRIVMSG #a :bob: no conversation is running here."))

	feed(t, b, w, ":alice!a@host PRIVMSG #a :!talk again")
	assert.True(t, w.contains("alice: a conversation is already running here"))

	require.Eventually(t, func() bool { return b.mailbox.Waiting("#a/alice") }, time.Second, time.Millisecond)
	feed(t, b, w, ":alice!a@host PRIVMSG #a :!reply Go")

	require.Eventually(t, func() bool { return w.contains("Conversation closed after 2 turns (completed).") }, time.Second, time.Millisecond)
	assert.True(t, w.contains("alice: Summary: summary of build a parser / Go"))
	assert.False(t, b.mailbox.Active("#a/alice"))
}

func TestIRCPrivateConversation(t *testing.T) {
	w := &fakeIRCWriter{nick: "talkbot"}
	b := newTestIRC(&askingRunner{question: "Sure?"})

	feed(t, b, w, ":carol!c@host PRIVMSG talkbot :!talk plan a trip")
	require.Eventually(t, func() bool { return b.mailbox.Waiting("carol/carol") }, time.Second, time.Millisecond)
	assert.True(t, w.contains("PRIVMSG carol :Sure?"))

	feed(t, b, w, ":carol!c@host PRIVMSG talkbot :!stop")
	require.Eventually(t, func() bool { return w.contains("The conversation stopped") }, time.Second, time.Millisecond)
}

func TestIRCIgnoresPlainMessagesAndUsage(t *testing.T) {
	w := &fakeIRCWriter{nick: "talkbot"}
	b := newTestIRC(&askingRunner{})

	feed(t, b, w, ":dave!d@host PRIVMSG #a :hello there")
	assert.Empty(t, w.sent())

	feed(t, b, w, ":dave!d@host PRIVMSG #a :!talk")
	assert.Equal(t, []string{"PRIVMSG #a :dave: Usage: !talk <purpose>"}, w.sent())
}

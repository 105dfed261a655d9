package internal

const (
	BOT_VERSION = "1.0.0"

	DEFAULT_CONFIG_PATH = "./data/config.toml"
	DEFAULT_DATA_DIR    = "./data"
	DEFAULT_ARCHIVE_DB  = "sessions.db"

	DEFAULT_RECONNECT_DELAY = 5
	DEFAULT_CONNECT_TIMEOUT = 30

	// IRC lines are limited to 512 bytes including the command prefix.
	IRC_MAX_MESSAGE_LENGTH = 400

	TELEGRAM_MAX_MESSAGE_LENGTH = 4000

	TOOL_NAME        = "talk_to_ai"
	TOOL_DESCRIPTION = "Use this function to send message to AI"
)

// IRC commands and numerics the transport reacts to.
const (
	RPL_WELCOME       = "001"
	RPL_ENDOFMOTD     = "376"
	ERR_NOMOTD        = "422"
	ERR_NICKNAMEINUSE = "433"

	CMD_PING    = "PING"
	CMD_PONG    = "PONG"
	CMD_PRIVMSG = "PRIVMSG"
	CMD_JOIN    = "JOIN"
	CMD_ERROR   = "ERROR"
)

package messaging

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/NumeroFox/app/models"
)

// Update is the subset of a Telegram webhook update the bot reacts to.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// UserID is the addressable id replies go to.
func (m *Message) UserID() string {
	return strconv.FormatInt(m.Chat.ID, 10)
}

type CommandName string

const (
	CommandStart         CommandName = "start"
	CommandHelp          CommandName = "help"
	CommandPreview       CommandName = "preview"
	CommandBuy           CommandName = "buy"
	CommandCompatibility CommandName = "compatibility"
	CommandStatus        CommandName = "status"
)

const compatibilityDelim = ";"

var (
	ErrNotACommand    = errors.New("messaging: not a command")
	ErrUnknownCommand = errors.New("messaging: unknown command")
	ErrCommandSyntax  = errors.New("messaging: bad command arguments")
)

// Command is a parsed bot command. Person and Partner carry the raw birthdate as typed.
type Command struct {
	Name    CommandName
	Person  *models.Person
	Partner *models.Person
	Code    string
}

// Usage returns the help line for a command.
func Usage(name CommandName) string {
	switch name {
	case CommandPreview:
		return "/preview <birthdate> <full name>, e.g. /preview 15.05.1990 Иван Иванов"
	case CommandBuy:
		return "/buy <birthdate> <full name>, e.g. /buy 1990-05-15 Иван Иванов"
	case CommandCompatibility:
		return "/compatibility <birthdate> <name> ; <birthdate> <partner name>"
	case CommandStatus:
		return "/status <order code>"
	default:
		return "/start, /help"
	}
}

// HelpText lists every command.
func HelpText() string {
	lines := []string{
		"NumeroFox builds numerology reports from your name and birthdate.",
		"",
		Usage(CommandPreview) + " (free)",
		Usage(CommandBuy) + " (full report)",
		Usage(CommandCompatibility),
		Usage(CommandStatus),
	}
	return strings.Join(lines, "\n")
}

// ParseCommand parses a chat message. Commands addressed to a bot ("/buy@NumeroFoxBot")
// are accepted.
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, ErrNotACommand
	}

	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	name := CommandName(strings.ToLower(head))
	rest = strings.TrimSpace(rest)

	cmd := &Command{Name: name}
	switch name {
	case CommandStart, CommandHelp:
		return cmd, nil
	case CommandPreview, CommandBuy:
		p, err := parsePerson(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, Usage(name))
		}
		cmd.Person = p
		return cmd, nil
	case CommandCompatibility:
		first, second, ok := strings.Cut(rest, compatibilityDelim)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCommandSyntax, Usage(name))
		}
		p, err := parsePerson(first)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, Usage(name))
		}
		partner, err := parsePerson(second)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, Usage(name))
		}
		cmd.Person, cmd.Partner = p, partner
		return cmd, nil
	case CommandStatus:
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return nil, fmt.Errorf("%w: %s", ErrCommandSyntax, Usage(name))
		}
		cmd.Code = rest
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: /%s", ErrUnknownCommand, head)
	}
}

func parsePerson(s string) (*models.Person, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return nil, ErrCommandSyntax
	}
	return &models.Person{Birthdate: fields[0], Name: strings.Join(fields[1:], " ")}, nil
}

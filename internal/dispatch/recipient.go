package dispatch

import (
	"encoding/json"
	"fmt"
)

// Recipient is the target of a routed message. The zero value is not a
// valid recipient and is never produced by Validate.
type Recipient uint8

const (
	recipientUnknown Recipient = iota
	RecipientHuman
	RecipientAI
)

var recipientNames = map[Recipient]string{
	RecipientHuman: "HUMAN",
	RecipientAI:    "AI",
}

// Recipients lists the accepted wire values in schema order.
func Recipients() []string {
	return []string{RecipientHuman.String(), RecipientAI.String()}
}

// ParseRecipient maps a wire value to a Recipient. Matching is exact:
// "human" or " AI" are rejected rather than coerced.
func ParseRecipient(s string) (Recipient, error) {
	for r, name := range recipientNames {
		if name == s {
			return r, nil
		}
	}
	return recipientUnknown, fmt.Errorf("unknown recipient %q", s)
}

func (r Recipient) String() string {
	if name, ok := recipientNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Recipient(%d)", uint8(r))
}

func (r Recipient) Valid() bool {
	_, ok := recipientNames[r]
	return ok
}

func (r Recipient) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid recipient %d", uint8(r))
	}
	return json.Marshal(r.String())
}

func (r *Recipient) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRecipient(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// Bot API descriptions that mean the target is gone rather than the call failed.
var notFoundHints = []string{
	"not found",
	"participant_id_invalid",
	"user_not_participant",
	"peer_id_invalid",
	"group chat was upgraded",
}

var forbiddenHints = []string{
	"chat_write_forbidden",
	"not enough rights",
	"have no rights",
	"need administrator rights",
}

// classify maps a telebot error onto the transport sentinels.
func classify(err error) error {
	var te *tele.Error
	if !errors.As(err, &te) {
		return kit.ErrTransport
	}
	desc := strings.ToLower(te.Description)
	if te.Code == 403 {
		return kit.ErrForbidden
	}
	if te.Code == 400 {
		for _, h := range forbiddenHints {
			if strings.Contains(desc, h) {
				return kit.ErrForbidden
			}
		}
		for _, h := range notFoundHints {
			if strings.Contains(desc, h) {
				return kit.ErrNotFound
			}
		}
	}
	return kit.ErrTransport
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("telegram %s: %w (%w)", op, classify(err), err)
}

package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

const callbackSep = "|"

var (
	ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
	ErrCallbackMalformed   = errors.New("tgui: malformed callback_data")
)

// Data formats inline callback data as "action|arg1|arg2...".
// Parts must not contain the separator.
func Data(action string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, strings.TrimSpace(action))
	for _, a := range args {
		if strings.Contains(a, callbackSep) {
			return "", ErrCallbackMalformed
		}
		parts = append(parts, a)
	}
	s := strings.Join(parts, callbackSep)
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData splits callback data produced by Data. It fails unless the data
// carries action and exactly nargs arguments.
func ParseData(data string, nargs int) (action string, args []string, err error) {
	parts := strings.Split(data, callbackSep)
	if len(parts) != nargs+1 || parts[0] == "" {
		return "", nil, ErrCallbackMalformed
	}
	return parts[0], parts[1:], nil
}

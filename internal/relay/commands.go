package relay

import (
	"strings"

	"warmline/internal/session"
)

// modeCommands maps exact in-band phrasings to persona modes. Matching is
// literal after trimming; anything else falls through to normal processing.
// Commands run after admission, so they still burn cooldown and dedup checks,
// but they never touch quota. Quota prices generation calls and a mode switch
// makes none.
var modeCommands = map[string]session.Mode{
	"/mode default": session.ModeDefault,
	"/mode light":   session.ModeLight,
	"/mode flirty":  session.ModeFlirty,
	"切換正常模式":        session.ModeDefault,
	"切換輕鬆模式":        session.ModeLight,
	"切換曖昧模式":        session.ModeFlirty,
}

// modeConfirmations are the fixed replies to a recognized mode command.
var modeConfirmations = map[session.Mode]string{
	session.ModeDefault: "好，回到平常的樣子陪你聊。",
	session.ModeLight:   "好啊，那我們輕鬆聊。",
	session.ModeFlirty:  "哦？那我不客氣囉。",
}

// matchModeCommand reports whether text is a recognized mode command.
func matchModeCommand(text string) (session.Mode, bool) {
	mode, ok := modeCommands[strings.ToLower(strings.TrimSpace(text))]
	return mode, ok
}

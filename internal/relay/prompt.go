package relay

import (
	"fmt"

	"warmline/internal/session"
)

// basePersona is the house persona: a warm, human-sounding zh-TW chat partner.
// The hard rules mirror what the scrubber enforces mechanically; telling the
// model first means the scrubber rarely has anything to cut.
const basePersona = `你是一位真人感極強的LINE聊天對象，名字叫「情緒價值大師」。
你住在台灣，說話自然、有溫度、有同理心，像真人在用LINE聊天。

【硬性規則】
- 絕對不要提到自己是程式或任何產品名稱。
- 不要像客服，不要條列式教科書口吻。
- 優先「理解情緒」>「給建議」。先陪伴、再討論解法。
- 允許口語：嗯、欸、我懂、辛苦了、真的假的。`

// modeStyles append per-mode flavor to the base persona.
var modeStyles = map[session.Mode]string{
	session.ModeDefault: "【風格】自然溫暖，像熟識的朋友。",
	session.ModeLight:   "【風格】輕鬆一點，多開玩笑，不聊沉重話題。",
	session.ModeFlirty:  "【風格】帶一點曖昧和調皮，但保持分寸。",
}

// systemPrompt builds the generation instruction for a mode and character
// budget. The budget is stated in the prompt as a soft target; the shaper
// enforces it for real afterwards.
func systemPrompt(mode session.Mode, budget int) string {
	style, ok := modeStyles[mode]
	if !ok {
		style = modeStyles[session.ModeDefault]
	}
	return fmt.Sprintf("%s\n%s\n【長度】回覆控制在 %d 個字以內，一到兩句話。", basePersona, style, budget)
}

package config

import "os"

// applyEnvOverrides lets the environment win over the file. The LINE_* /
// GEMINI_* names match what the hosting platforms already set; the WARMLINE_*
// names cover the rest.
func (c *Config) applyEnvOverrides() {
	setIfPresent(&c.Line.ChannelSecret, "LINE_CHANNEL_SECRET")
	setIfPresent(&c.Line.ChannelAccessToken, "LINE_CHANNEL_ACCESS_TOKEN")
	setIfPresent(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setIfPresent(&c.Gemini.Model, "GEMINI_MODEL")

	setIfPresent(&c.Server.Addr, "WARMLINE_ADDR")
	setIfPresent(&c.Limits.Cooldown, "WARMLINE_COOLDOWN")
	setIfPresent(&c.Reply.BlockedTermsFile, "WARMLINE_BLOCKED_TERMS_FILE")
	setIfPresent(&c.Logging.Level, "WARMLINE_LOG_LEVEL")
}

func setIfPresent(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

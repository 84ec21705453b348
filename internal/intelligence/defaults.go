package intelligence

// Built-in indicator lists, used when no configuration overrides them.
var (
	DefaultKeywords = []string{
		"cheat", "cheats", "чит", "читы",
		"hack", "hacks", "хак", "хаки",
		"aimbot", "аимбот", "wallhack", "валхак",
		"esp", "еsп",
		"inject", "injector", "инжектор",
		"bypass", "байпас", "spoofer", "спуфер",
		"vanish", "godmode", "годмод",
		"mod menu", "модменю",
		"undetected", "ud", "анти детект",
		"hwid", "хвид",
		"rage", "legit", "рейдж", "легит",
		"skin changer", "скин ченджер",
		"triggerbot", "триггербот",
	}

	DefaultSites = []string{
		"unknowncheats.me",
		"mpgh.net",
		"guided-hacking.com",
		"cheatengine.org",
		"wemod.com",
		"gamehacking.org",
		"fearless-assassins.com",
		"cheathappens.com",
		"cheatsquad.gg",
		"projectinfinity.xyz",
	}

	DefaultChatServers = []string{
		"cheat", "hack", "bypass", "spoof", "inject", "mod menu", "aimbot", "esp",
	}

	DefaultChatChannels = []string{
		"cheats", "hacks", "releases", "leaks", "showcase", "configs", "support",
	}

	// AuthPatterns are URL shapes that mark a blacklist hit as a sign-in attempt.
	AuthPatterns = []string{
		"/login", "/signin", "/sign-in", "/auth", "/account",
		"/register", "/signup", "/sign-up", "oauth", "authenticate",
	}
)

// DefaultSources returns the built-in indicator lists without any hashes.
func DefaultSources() Sources {
	return Sources{
		Keywords:     append([]string(nil), DefaultKeywords...),
		Sites:        append([]string(nil), DefaultSites...),
		ChatServers:  append([]string(nil), DefaultChatServers...),
		ChatChannels: append([]string(nil), DefaultChatChannels...),
	}
}

package bot

import "errors"

var (
	// ErrNoChannel means the bot has no channel to post to: the channel id
	// is unset or the gateway cannot see it.
	ErrNoChannel = errors.New("bot channel not available")
	ErrNoGateway = errors.New("bot requires a gateway")
	ErrNoBackend = errors.New("bot requires a generator")
)

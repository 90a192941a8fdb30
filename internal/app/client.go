package app

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	intrnl "timekeeper/internal"
	"timekeeper/internal/activity"
	"timekeeper/internal/cards"
	"timekeeper/internal/logging"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
// The terminal belongs to the TUI, so logs only go to LogPath when it is set.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the client needs an interactive terminal")
	}

	logger := zerolog.Nop()
	var closer io.Closer
	if cfg.LogPath != "" {
		var err error
		logger, closer, err = logging.File(cfg.LogPath, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	deck, err := cards.Load(cfg.DeckPath)
	if err != nil {
		return err
	}
	device := activity.ProbeDeviceClass(os.LookupEnv)
	logger.Info().
		Str("server", cfg.ServerURL).
		Str("device", device.String()).
		Int("cards", len(deck.Cards)).
		Msg("client starting")

	return intrnl.RunClient(intrnl.ClientOptions{
		ServerURL: cfg.ServerURL,
		WSPath:    NormalizeWSPath(cfg.WSPath),
		Identity:  cfg.Identity,
		Deck:      deck,
		Device:    device,
		Logger:    logger,
	})
}

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"clawpanel/internal/config"
	"clawpanel/internal/content"
	"clawpanel/internal/gateway"
	"clawpanel/internal/history"
	"clawpanel/internal/media"
	"clawpanel/pkg/logger"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		agentID    string
		sessionKey string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the agent through the gateway",
		Long: `Open an interactive chat panel connected to the gateway. The reply
streams in as it is generated; file and image attachments referenced by
the final message are fetched through the same connection.

If a message is given as an argument, it is sent once and the command
exits after the reply completes.`,
		Example: `  # Interactive panel
  clawpanel chat

  # One-shot question
  clawpanel chat "What changed since yesterday?"

  # Talk to a specific agent on a side session
  clawpanel chat --agent helper --session scratch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gatewayConfig()
			if err != nil {
				return err
			}

			gwCfg := gateway.Config{
				GatewayURL: cfg.Gateway.URL,
				Token:      cfg.Gateway.Token,
				Password:   cfg.Gateway.Password,
				AgentID:    cfg.Chat.AgentID,
				SessionKey: cfg.Chat.SessionKey,
			}
			if agentID != "" {
				gwCfg.AgentID = agentID
			}
			if sessionKey != "" {
				gwCfg.SessionKey = sessionKey
			}

			historyPath := cfg.History.Path
			if historyPath == "" {
				historyPath, err = config.DefaultHistoryPath()
				if err != nil {
					return err
				}
			}
			store, err := history.Open(historyPath)
			if err != nil {
				return err
			}
			defer store.Close()

			session := newChatSession(gwCfg, store)
			session.agentOverride = agentID
			session.sessionOverride = sessionKey
			defer session.close()

			if err := session.connect(); err != nil {
				return err
			}

			// Saving the config file reconnects the running session with the
			// fresh settings.
			configPath := globalFlags.ConfigPath
			if configPath == "" {
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			if watcher, err := config.NewWatcher(configPath, session.applyConfig); err != nil {
				logger.Warn().Err(err).Msg("config watcher unavailable")
			} else if err := watcher.Start(); err != nil {
				logger.Warn().Err(err).Str("path", configPath).Msg("config watcher failed to start")
			} else {
				defer watcher.Stop()
			}

			if len(args) > 0 {
				return session.ask(strings.Join(args, " "))
			}
			return session.interactive()
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent to address (reads from config if not specified)")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key to continue conversation")

	return cmd
}

// chatSession renders one panel conversation: streaming deltas, the final
// segmented message, and media fetches.
type chatSession struct {
	client *gateway.Client
	cache  *media.Cache
	store  *history.Store

	// cfgMu guards cfg; a config-file save swaps it mid-session.
	cfgMu sync.Mutex
	cfg   gateway.Config

	// Flag values that keep overriding the config file across reloads.
	agentOverride   string
	sessionOverride string

	turnDone  chan struct{}
	doneTimer *time.Timer
	lastDelta string
	streaming bool
}

func newChatSession(cfg gateway.Config, store *history.Store) *chatSession {
	s := &chatSession{
		cfg:      cfg,
		store:    store,
		turnDone: make(chan struct{}, 1),
	}

	s.client = gateway.NewClient(gateway.Handlers{
		OnState: s.onState,
		OnEvent: s.onEvent,
	}, gateway.Options{})
	s.cache = media.NewCache(s.client)

	return s
}

func (s *chatSession) connect() error {
	cfg := s.currentCfg()
	if err := s.client.ConnectAndVerify(cfg); err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", cfg.GatewayURL)
	return nil
}

func (s *chatSession) close() {
	s.client.Disconnect()
}

func (s *chatSession) currentCfg() gateway.Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// applyConfig rebuilds the connection settings after the config file changes
// on disk and redials with them. Flag overrides stay in force.
func (s *chatSession) applyConfig(cfg *config.Config) {
	gwCfg := gateway.Config{
		GatewayURL: cfg.Gateway.URL,
		Token:      cfg.Gateway.Token,
		Password:   cfg.Gateway.Password,
		AgentID:    cfg.Chat.AgentID,
		SessionKey: cfg.Chat.SessionKey,
	}
	if s.agentOverride != "" {
		gwCfg.AgentID = s.agentOverride
	}
	if s.sessionOverride != "" {
		gwCfg.SessionKey = s.sessionOverride
	}

	s.cfgMu.Lock()
	s.cfg = gwCfg
	s.cfgMu.Unlock()

	fmt.Println("\n[config] settings changed, reconnecting...")
	s.client.Connect(gwCfg)
}

func (s *chatSession) sessionKey() string {
	key := s.currentCfg().SessionKey
	if key == "" {
		return "main"
	}
	return key
}

// ask sends one message and blocks until the reply finishes.
func (s *chatSession) ask(text string) error {
	if err := s.client.SendChatMessage(text, s.currentCfg()); err != nil {
		return err
	}
	if _, err := s.store.Append(s.sessionKey(), "user", text); err != nil {
		logger.Warn().Err(err).Msg("transcript write failed")
	}

	select {
	case <-s.turnDone:
		return nil
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("reply never completed")
	}
}

func (s *chatSession) interactive() error {
	fmt.Println(`Type a message and press enter. "/clear" resets the conversation, "/quit" exits.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			s.cache.Clear()
			if err := s.store.Clear(s.sessionKey()); err != nil {
				fmt.Printf("[error] clear history: %v\n", err)
			}
			fmt.Println("Conversation cleared.")
		default:
			if err := s.ask(line); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
		}
	}
}

func (s *chatSession) onState(state gateway.ConnState, note string) {
	if note != "" {
		fmt.Printf("\n[%s] %s\n", state, note)
	}
}

func (s *chatSession) onEvent(ev gateway.Event) {
	switch ev.Kind {
	case gateway.KindAssistantDelta:
		s.renderDelta(ev.Text)

	case gateway.KindAssistantDone:
		s.finishStream()
		// The final text, when there is any, follows immediately. The timer
		// only ends the turn for finals that carried no renderable text.
		s.doneTimer = time.AfterFunc(100*time.Millisecond, s.signalTurnDone)

	case gateway.KindAssistant:
		if s.doneTimer != nil {
			s.doneTimer.Stop()
			s.doneTimer = nil
		}
		s.renderFinal(ev.Text)
		s.signalTurnDone()

	case gateway.KindError:
		s.finishStream()
		fmt.Printf("[error] %s\n", ev.Text)
		s.signalTurnDone()

	case gateway.KindInfo:
		fmt.Printf("[info] %s\n", ev.Text)
	}
}

// renderDelta prints only what the new accumulated text adds over the
// previous delta. Each delta carries the whole text so far, so anything
// that is not a pure extension forces a reprint.
func (s *chatSession) renderDelta(full string) {
	if !s.streaming {
		s.streaming = true
		s.lastDelta = ""
	}

	if strings.HasPrefix(full, s.lastDelta) {
		fmt.Print(full[len(s.lastDelta):])
	} else {
		fmt.Printf("\n%s", full)
	}
	s.lastDelta = full
}

func (s *chatSession) finishStream() {
	if s.streaming {
		fmt.Println()
		s.streaming = false
		s.lastDelta = ""
	}
}

// renderFinal segments the completed message and resolves media references.
func (s *chatSession) renderFinal(text string) {
	if _, err := s.store.Append(s.sessionKey(), "assistant", text); err != nil {
		logger.Warn().Err(err).Msg("transcript write failed")
	}

	for _, seg := range content.ParseContent(text) {
		switch seg.Kind {
		case content.SegmentText:
			fmt.Println(seg.Text)

		case content.SegmentMedia:
			s.renderMedia(seg.FilePath, seg.MimeType)

		case content.SegmentInlineImage:
			fmt.Printf("[inline image: %s, %d bytes base64]\n", seg.MediaType, len(seg.Base64))
		}
	}
}

func (s *chatSession) renderMedia(path, mimeType string) {
	name := content.FileNameFromPath(path)

	if url, ok := s.cache.Get(path, mimeType, func() {
		if entry, found := s.cache.Lookup(path); found {
			switch entry.State {
			case media.StateReady:
				fmt.Printf("[media ready: %s, %d bytes]\n", name, len(entry.DataURL))
			case media.StateError:
				fmt.Printf("[media failed: %s: %s]\n", name, entry.Message)
			}
		}
	}); ok {
		fmt.Printf("[media cached: %s, %d bytes]\n", name, len(url))
		return
	}

	fmt.Printf("[media: %s (%s), fetching...]\n", name, mimeType)
}

func (s *chatSession) signalTurnDone() {
	select {
	case s.turnDone <- struct{}{}:
	default:
	}
}

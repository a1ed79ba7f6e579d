package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/npc-quest-engine/internal/catalog"
	"github.com/jwebster45206/npc-quest-engine/internal/delivery"
	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/storage"
	"github.com/jwebster45206/npc-quest-engine/pkg/reply"
)

type ConsoleConfig struct {
	QuestsPath string
	NPCsPath   string
	UserID     string
	Channel    string
}

func main() {
	cfg := &ConsoleConfig{
		QuestsPath: getEnv("QUESTS_PATH", "data/quests.json"),
		NPCsPath:   getEnv("NPCS_PATH", "data/npcs.json"),
		UserID:     getEnv("CONSOLE_USER_ID", "100000000000000001"),
		Channel:    getEnv("CONSOLE_CHANNEL", "general"),
	}

	// The TUI owns the terminal, so engine logs are discarded
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := catalog.Load(cfg.QuestsPath, cfg.NPCsPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}
	if len(cat.QuestIDs()) == 0 || len(cat.NPCNames()) == 0 {
		fmt.Fprintf(os.Stderr, "Catalog needs at least one quest and one NPC\n")
		os.Exit(1)
	}

	recorder := &delivery.Recorder{}
	eng, err := engine.New(engine.Config{
		Catalog:  cat,
		Store:    storage.NewMemoryStorage(),
		Sink:     recorder,
		Selector: reply.NewRandomSelector(reply.DefaultMemoSize),
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create engine: %v\n", err)
		os.Exit(1)
	}

	session := NewSession(eng, recorder, cfg.UserID, cfg.Channel)

	p := tea.NewProgram(NewConsoleUI(session, cat.QuestIDs(), cat.NPCNames()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

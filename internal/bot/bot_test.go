package bot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNewBot(t *testing.T) {
	cfg := &Config{
		DiscordToken: "test-token",
	}

	b := NewBot(cfg)

	if b == nil {
		t.Fatal("expected bot to be created, got nil")
	}
	if b.config != cfg {
		t.Error("expected config to be stored")
	}
}

func TestBot_InitModules_PassesDependencies(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	mod := &trackingStubModule{stubModule: stubModule{name: "tracking"}}
	b.modules = []Module{mod}

	if err := b.initModules(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !mod.initCalled {
		t.Fatal("expected Init to be called")
	}
	if mod.deps.Config != cfg {
		t.Error("expected config to be passed to module")
	}
}

func TestBot_InitModules_ReturnsInitError(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	expectedErr := errors.New("init failed")
	b.modules = []Module{&stubModule{name: "failing", initErr: expectedErr}}

	err := b.initModules()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestBot_LoadModuleConfigs(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	configurable := &configurableStubModule{stubModule: stubModule{name: "configurable"}}
	b.modules = []Module{&stubModule{name: "plain"}, configurable}

	if err := b.loadModuleConfigs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configurable.loaded {
		t.Error("expected LoadConfig to be called")
	}
}

func TestBot_LoadModuleConfigs_ReturnsError(t *testing.T) {
	b := NewBot(&Config{DiscordToken: "test-token"})

	expectedErr := errors.New("missing LAVALINK_ADDRESS")
	b.modules = []Module{&configurableStubModule{
		stubModule: stubModule{name: "configurable"},
		loadErr:    expectedErr,
	}}

	err := b.loadModuleConfigs()
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestBot_BuildHandlerMap(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	handler := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		return nil
	}

	mod := &stubModule{
		name: "test",
		handlers: map[string]InteractionHandler{
			"play": handler,
		},
	}
	b.modules = []Module{mod}

	b.buildHandlerMap()

	if _, ok := b.handlers["play"]; !ok {
		t.Error("expected play handler to be registered")
	}
}

func TestBot_BuildHandlerMap_FirstModuleWins(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	var called string
	first := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		called = "first"
		return nil
	}
	second := func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error {
		called = "second"
		return nil
	}

	b.modules = []Module{
		&stubModule{name: "mod1", handlers: map[string]InteractionHandler{"skip": first, "join": first}},
		&stubModule{name: "mod2", handlers: map[string]InteractionHandler{"skip": second}},
	}

	b.buildHandlerMap()

	if len(b.handlers) != 2 {
		t.Errorf("expected 2 handlers, got %d", len(b.handlers))
	}
	_ = b.handlers["skip"](nil, nil, nil)
	if called != "first" {
		t.Errorf("expected first handler to win, got %q", called)
	}
}

func TestBot_CollectCommands(t *testing.T) {
	cfg := &Config{DiscordToken: "test-token"}
	b := NewBot(cfg)

	cmd := &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Play a track",
	}

	mod := &stubModule{
		name:     "test",
		commands: []*discordgo.ApplicationCommand{cmd},
	}
	b.modules = []Module{mod}

	commands := b.collectCommands()

	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	if commands[0].Name != "play" {
		t.Errorf("expected command name %q, got %q", "play", commands[0].Name)
	}
}

func TestBot_CommandScope(t *testing.T) {
	global := NewBot(&Config{DiscordToken: "t"})
	if got := global.commandScope(); got != "" {
		t.Errorf("expected global scope, got %q", got)
	}

	guild := NewBot(&Config{DiscordToken: "t", TestGuildID: "42"})
	if got := guild.commandScope(); got != "42" {
		t.Errorf("expected guild scope %q, got %q", "42", got)
	}
}

func TestMockResponder_RecordsDeferAndEdit(t *testing.T) {
	r := &MockResponder{}

	if err := r.Defer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := "done"
	if err := r.Edit(&discordgo.WebhookEdit{Content: &content}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.Deferred {
		t.Error("expected Deferred to be true")
	}
	if r.LastEdit == nil || *r.LastEdit.Content != "done" {
		t.Error("expected edit to be recorded")
	}
}

// trackingStubModule is a stub that records the Init call and its dependencies
type trackingStubModule struct {
	stubModule
	initCalled bool
	deps       ModuleDependencies
}

func (m *trackingStubModule) Init(deps ModuleDependencies) error {
	m.initCalled = true
	m.deps = deps
	return m.stubModule.Init(deps)
}

// configurableStubModule is a stub implementing ConfigurableModule
type configurableStubModule struct {
	stubModule
	loaded  bool
	loadErr error
}

func (m *configurableStubModule) LoadConfig() error {
	m.loaded = true
	return m.loadErr
}

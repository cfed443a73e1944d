package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bosar/console/internal/api"
	"github.com/bosar/console/internal/chat"
	"github.com/bosar/console/internal/cli"
	"github.com/bosar/console/internal/config"
	"github.com/bosar/console/internal/version"
	"github.com/bosar/console/internal/wire"
	"github.com/bosar/console/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.Debug {
		log.Printf("Config: APIBaseURL=%s, ChatURL=%s", cfg.APIBaseURL, cfg.ChatURL)
	}

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		printUsage()
		return nil
	case "version", "--version", "-v":
		fmt.Printf("bosar-console v%s\n", version.RichVersion())
		return nil
	case "login":
		return loginCommand(cfg, args[1:])
	case "conversations":
		return conversationsCommand(cfg)
	case "attach":
		if len(args) < 2 {
			return fmt.Errorf("usage: bosar attach <conversation-id>")
		}
		return attachCommand(cfg, args[1])
	case "takeover":
		if len(args) < 2 {
			return fmt.Errorf("usage: bosar takeover <conversation-id> [reason]")
		}
		reason := "manual takeover"
		if len(args) > 2 {
			reason = strings.Join(args[2:], " ")
		}
		return takeoverCommand(cfg, args[1], reason)
	}

	return fmt.Errorf("unknown command %q", args[0])
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("bosar", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	apiURL := fs.String("api-url", "", "REST API base URL")
	chatURL := fs.String("chat-url", "", "Chat socket URL")
	token := fs.String("token", "", "Bearer token")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *apiURL != "" {
		cfg.APIBaseURL = strings.TrimRight(*apiURL, "/")
	}
	if *chatURL != "" {
		cfg.ChatURL = *chatURL
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = logger.LevelDebug
	}

	return fs.Args(), nil
}

// loginCommand authenticates with email and password and prints the token
// so it can be exported for later commands.
func loginCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "Agent email")
	password := fs.String("password", "", "Agent password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("usage: bosar login -email <email> -password <password>")
	}

	client := api.NewClient(cfg.APIBaseURL)
	resp, err := client.Login(context.Background(), *email, *password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := cli.SaveAccessToken(cfg, resp.AccessToken); err != nil {
		return err
	}
	log.Printf("Logged in as %s (%s)", resp.User.Name, resp.User.Email)
	log.Printf("Token saved to %s", cfg.AccessKey)
	return nil
}

func conversationsCommand(cfg *config.Config) error {
	token, err := cli.EnsureAccessToken(cfg)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.APIBaseURL)
	client.SetToken(token)

	conversations, err := client.Conversations(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	for _, conv := range conversations {
		agent := "-"
		if conv.User != nil {
			agent = conv.User.Name
		}
		fmt.Printf("%s  %-6s  agent=%s  customer=%s\n", conv.ID, conv.Status, agent, conv.CustomerID)
	}
	return nil
}

func takeoverCommand(cfg *config.Config, conversationID, reason string) error {
	token, err := cli.EnsureAccessToken(cfg)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.APIBaseURL)
	client.SetToken(token)

	if err := client.TriggerHumanTakeover(context.Background(), conversationID, reason); err != nil {
		return fmt.Errorf("takeover failed: %w", err)
	}
	log.Printf("Conversation %s assigned to you", conversationID)
	return nil
}

// attachCommand joins a conversation, prints its history and live messages,
// and sends each stdin line as an agent message. Sends go over the realtime
// transport when it is up and fall back to REST when it is not.
func attachCommand(cfg *config.Config, conversationID string) error {
	token, err := cli.EnsureAccessToken(cfg)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.APIBaseURL)
	client.SetToken(token)

	registry := chat.NewRegistry(cfg.ChatURL, chat.Dial, chat.DefaultTiming())
	defer registry.Release()

	binding, err := chat.NewBinding(registry, token, conversationID, chat.BindingOptions{
		OnMessage: func(msg wire.Message) {
			printMessage(msg)
		},
		OnStatusChange: func(change wire.StatusChange) {
			log.Printf("Conversation status: %s", change.Status)
		},
		OnError: func(message string) {
			log.Printf("Chat error: %s", message)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to attach: %w", err)
	}
	defer binding.Close()

	view := chat.NewConversationView(client, binding)
	if err := view.Refresh(context.Background()); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	for _, msg := range view.Messages() {
		printMessage(msg)
	}

	log.Printf("Attached to %s. Type a message and press enter; Ctrl+C to exit.", conversationID)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigs:
			log.Println("Detaching")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := view.Send(context.Background(), line, wire.RoleAgent); err != nil {
				log.Printf("Send failed: %v", err)
			}
		}
	}
}

func printMessage(msg wire.Message) {
	from := string(msg.Role)
	if msg.User != nil {
		from = msg.User.Name
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt, from, msg.Message)
}

func printUsage() {
	fmt.Println(`bosar - support chat console

Usage:
  bosar [flags] <command>

Commands:
  login -email <email> -password <password>   Authenticate and save a token
  conversations                               List conversations
  attach <conversation-id>                    Join a conversation and chat
  takeover <conversation-id> [reason]         Assign a conversation to yourself
  version                                     Print version
  help                                        Show this help

Flags:
  -api-url <url>    Override the REST API base URL
  -chat-url <url>   Override the chat socket URL
  -token <token>    Bearer token (or set BOSAR_TOKEN)
  -debug            Enable debug logging

Environment:
  BOSAR_HOSTNAME, BOSAR_API_URL, BOSAR_CHAT_URL, BOSAR_TOKEN, BOSAR_HOME,
  BOSAR_DEBUG`)
}

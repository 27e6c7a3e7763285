package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/api"
	"github.com/spec-kit/family-session/internal/config"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/events"
	"github.com/spec-kit/family-session/internal/observability"
	"github.com/spec-kit/family-session/internal/route"
	"github.com/spec-kit/family-session/internal/service"
	"github.com/spec-kit/family-session/internal/store"
	"github.com/spec-kit/family-session/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open credential store", zap.Error(err))
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	client := api.NewClient(cfg.API, creds, logger, metrics)
	dispatcher := events.NewInMemoryDispatcher(logger)

	sessions := service.NewSessionService(logger, service.Dependencies{
		Creds:      creds,
		Client:     client,
		Dispatcher: dispatcher,
	})
	profiles := service.NewProfileService(sessions, logger)

	dispatcher.Subscribe(events.EventSessionStateChanged, func(_ context.Context, ev events.Event) error {
		fmt.Printf("-> %s (screen: %s)\n", ev.State.Phase, route.Decide(ev.State))
		return nil
	})

	if err := sessions.Init(ctx); err != nil {
		logger.Fatal("failed to restore session", zap.Error(err))
	}
	defer sessions.Dispose()

	revalidator := worker.NewRevalidationWorker(sessions, cfg.Session.RevalidateInterval(), logger)
	revalidator.Start(ctx)
	defer revalidator.Stop()

	repl(ctx, sessions, profiles)
}

func repl(ctx context.Context, sessions *service.SessionService, profiles *service.ProfileService) {
	fmt.Println("commands: login, register, profiles, select, pin, switch, create, back, logout, state, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "login":
			if len(fields) != 3 {
				fmt.Println("usage: login <email> <password>")
				continue
			}
			_, err = sessions.Login(ctx, fields[1], fields[2])
		case "register":
			if len(fields) != 5 {
				fmt.Println("usage: register <username> <email> <password> <pin>")
				continue
			}
			_, err = sessions.Register(ctx, fields[1], fields[2], fields[3], fields[4])
		case "profiles":
			printProfiles(sessions.Account())
		case "select":
			if len(fields) != 2 {
				fmt.Println("usage: select <profile-id>")
				continue
			}
			err = profiles.Select(ctx, fields[1])
		case "pin":
			if len(fields) != 2 {
				fmt.Println("usage: pin <digits>")
				continue
			}
			err = profiles.ConfirmPin(ctx, fields[1])
		case "switch":
			if len(fields) != 2 {
				fmt.Println("usage: switch <profile-id>")
				continue
			}
			err = profiles.Switch(ctx, fields[1])
		case "create":
			if len(fields) < 3 {
				fmt.Println("usage: create <name> <role> [pin]")
				continue
			}
			pinCode := ""
			if len(fields) > 3 {
				pinCode = fields[3]
			}
			_, err = profiles.CreateProfile(ctx, fields[1], domain.ProfileRole(strings.ToUpper(fields[2])), pinCode)
		case "back":
			err = profiles.Exit(ctx)
		case "logout":
			err = sessions.Logout(ctx)
		case "state":
			state := sessions.Snapshot()
			fmt.Printf("%s (screen: %s)\n", state.Phase, route.Decide(state))
		case "quit":
			return
		default:
			fmt.Println("unknown command")
			continue
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printProfiles(account *domain.Account) {
	if account == nil {
		fmt.Println("no account snapshot")
		return
	}
	for _, profile := range account.Profiles {
		gate := "pin"
		if !profile.Role.RequiresPin() {
			gate = "open"
		}
		fmt.Printf("%s  %-10s %-6s %s\n", profile.ID, profile.Name, profile.Role, gate)
	}
}

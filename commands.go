package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"finassist/cli"
	"finassist/config"
	"finassist/mcp"
	"finassist/provider"
	"finassist/web"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "address to listen on (overrides [server] listen)")
	fs.Parse(args)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadModel(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := a.sessionManager()
	go sessions.Run(ctx, time.Minute)
	defer sessions.CloseAll()

	srv := web.NewServer(web.Options{
		Orchestrator:   a.orchestrator,
		Executor:       a.executor,
		Sessions:       sessions,
		Archive:        a.archive,
		Ledgers:        a.store,
		Recognizer:     a.recognizerFactory(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		MaxToolRounds:  a.cfg.Assistant.MaxToolRounds,
	})

	addr := a.cfg.Server.Listen
	if *listen != "" {
		addr = *listen
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("finassist %s listening on %s\n", Version, addr)
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	user := fs.String("user", os.Getenv("USER"), "user whose ledger the assistant works on")
	width := fs.Int("width", terminalWidth(), "render width for replies")
	fs.Parse(args)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadModel(); err != nil {
		return err
	}

	sessions := a.sessionManager()
	defer sessions.CloseAll()

	session, err := sessions.Create(*user)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = cli.NewREPL(session, os.Stdin, os.Stdout, *width).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func terminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 20 {
		return cols
	}
	return 80
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	user := fs.String("user", os.Getenv("USER"), "user whose ledger the tools work on")
	fs.Parse(args)

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return mcp.NewServer(a.executor, *user, Version).ServeStdio()
}

func runProvider(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "list":
		withKeys := map[string]bool{}
		for _, id := range cfg.CredentialStore.Providers() {
			withKeys[id] = true
		}
		providers := append([]config.ProviderConfig(nil), cfg.Providers...)
		sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
		for _, p := range providers {
			active := " "
			if p.ID == cfg.Assistant.Provider {
				active = "*"
			}
			fmt.Printf("%s %-11s enabled=%-5v key=%-5v %s\n", active, p.ID, p.Enabled, withKeys[p.ID] || cfg.APIKey(p.ID) != "", p.BaseURL)
		}
		return nil

	case "set":
		if len(args) != 4 {
			return fmt.Errorf("usage: finassist provider set <id> <field> <value>")
		}
		if err := config.UpdateProviderField(cfg, args[1], args[2], args[3]); err != nil {
			return err
		}
		fmt.Printf("Updated %s %s\n", args[1], args[2])
		return nil

	case "models":
		id := cfg.Assistant.Provider
		if len(args) > 1 {
			id = args[1]
		}
		return listProviderModels(cfg, id)

	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func listProviderModels(cfg *config.Config, id string) error {
	p, ok := provider.InitializeProviders(cfg)[id]
	if !ok {
		return fmt.Errorf("%w: %s (check enabled flag and API key)", provider.ErrProviderNotEnabled, id)
	}

	models, err := provider.FetchModels(context.Background(), p, id)
	if err != nil {
		return fmt.Errorf("failed to list models for %s: %w", id, err)
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	for _, m := range models {
		marker := " "
		if id == cfg.Assistant.Provider && (m.InternalName == cfg.Assistant.Model || m.Name == cfg.Assistant.Model) {
			marker = "*"
		}
		if m.InternalName != "" && m.InternalName != m.Name {
			fmt.Printf("%s %s (%s)\n", marker, m.Name, m.InternalName)
		} else {
			fmt.Printf("%s %s\n", marker, m.Name)
		}
	}
	return nil
}

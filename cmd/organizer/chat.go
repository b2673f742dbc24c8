package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
	logpkg "github.com/avdivo/dev-organizer/internal/logger"
	"github.com/avdivo/dev-organizer/internal/usecase/assistant"
	reminderuc "github.com/avdivo/dev-organizer/internal/usecase/reminder"
)

const exitCommand = "0"

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long: `Reads one message per line and prints the assistant's answer.
Enter 0 to quit. Logs go to logging.file so they do not mix with the dialogue.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "user id the notes belong to")
	_ = chatCmd.MarkFlagRequired("user")
}

// handler is the part of the assistant the chat loop needs.
type handler interface {
	Handle(ctx context.Context, tenant, text string) (assistant.Reply, error)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	notifier := reminderuc.NotifierFunc(func(_ context.Context, rem domnote.Reminder) error {
		_, err := fmt.Fprintf(out, "\n[reminder] %s\n> ", rem.Text)
		return err
	})

	a, err := buildApp(ctx, cfg, notifier, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.listSvc.EnsureUser(ctx, chatUser, chatUser); err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	if cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			if err := a.scheduler.Stop(); err != nil {
				logger.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
	}

	fmt.Fprintf(out, "Hi, %s. Type a message, or 0 to quit.\n", chatUser)
	return chatLoop(ctx, a.assistant, chatUser, cmd.InOrStdin(), out, logger)
}

// chatLoop answers each input line until EOF, the exit command or cancellation.
func chatLoop(ctx context.Context, h handler, user string, in io.Reader, out io.Writer, logger *zap.Logger) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case exitCommand:
			fmt.Fprintln(out, "Bye.")
			return nil
		}

		reply, err := h.Handle(ctx, user, text)
		if err != nil {
			logger.Warn("Message failed", zap.String("user", user), zap.Error(err))
			fmt.Fprintln(out, chatError(err))
			continue
		}
		fmt.Fprintln(out, reply.Text)
	}
}

// chatError turns an error into a line for the user without exposing internals.
func chatError(err error) string {
	if msg := domain.UserMessage(err); msg != "" {
		return msg
	}
	switch {
	case errors.Is(err, domain.ErrListNotFound):
		return "There is no such list. Create it first."
	case errors.Is(err, domain.ErrTokenBudgetExceeded):
		return "The token budget is spent. Try again later."
	case errors.Is(err, domain.ErrEmbeddingProviderError), errors.Is(err, domain.ErrGenerationProviderError):
		return "The model provider is unavailable. Try again later."
	}
	return "Something went wrong. Try again."
}

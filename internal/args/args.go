package args

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/markis/convstream/internal/config"
	"github.com/spf13/cobra"
)

// Commands selectable on the command line.
const (
	CommandCreate = "create"
	CommandList   = "list"
)

// ErrHelp is returned when only help or usage output was requested.
var ErrHelp = errors.New("help requested")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Command      string
	Content      string
	Scene        int64
	Role         string
	Sender       *int64
	Receiver     *int64
	Parent       *int64
	BaseURL      string
	UsePlainText bool
}

// ParseArgs parses argv with cobra. stdin, when non-nil, is piped input
// that becomes (or extends) the conversation content.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string, stdin io.Reader) (Arguments, error) {
	args := Arguments{}
	var sender, receiver, parent int64

	rootCmd := &cobra.Command{
		Use:   "convstream [flags] [content]",
		Short: "Create a conversation turn and stream the generated reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandCreate
			if len(cmdArgs) > 0 {
				args.Content = cmdArgs[0]
			}
			flags := cmd.Flags()
			if flags.Changed("sender") {
				args.Sender = &sender
			}
			if flags.Changed("receiver") {
				args.Receiver = &receiver
			}
			if flags.Changed("parent") {
				args.Parent = &parent
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&args.BaseURL, "base-url", cfg.BaseURL, "Backend base URL")
	rootCmd.PersistentFlags().BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")

	rootCmd.Flags().Int64Var(&args.Scene, "scene", 0, "Scene the conversation belongs to")
	rootCmd.Flags().StringVar(&args.Role, "role", cfg.Role, "Role of the speaker")
	rootCmd.Flags().Int64Var(&sender, "sender", 0, "Sending character ID")
	rootCmd.Flags().Int64Var(&receiver, "receiver", 0, "Receiving character ID")
	rootCmd.Flags().Int64Var(&parent, "parent", 0, "Parent conversation ID")
	_ = rootCmd.MarkFlagRequired("scene")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the conversation turns of a scene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().Int64Var(&args.Scene, "scene", 0, "Scene to list")
	_ = listCmd.MarkFlagRequired("scene")
	rootCmd.AddCommand(listCmd)

	rootCmd.SetArgs(argv)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	if args.Command == "" {
		return Arguments{}, ErrHelp
	}

	if args.Command == CommandCreate {
		if stdin != nil {
			piped, err := readInput(stdin)
			if err != nil {
				return Arguments{}, err
			}
			args.Content = joinContent(args.Content, piped)
		}
		if args.Content == "" {
			return Arguments{}, errors.New("no content provided")
		}
	}
	if args.Scene <= 0 {
		return Arguments{}, fmt.Errorf("scene must be a positive ID, got %d", args.Scene)
	}

	return args, nil
}

// PipedStdin returns os.Stdin when input is piped rather than a terminal.
func PipedStdin() io.Reader {
	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return os.Stdin
	}
	return nil
}

func readInput(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func joinContent(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if !term.FromEnv().IsTerminalOutput() {
		return true
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	return os.Getenv("TERM") == "dumb"
}

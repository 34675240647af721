package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"ntropiq/internal/config"
	"ntropiq/internal/conversation"
	"ntropiq/internal/logger"
	"ntropiq/internal/services"
	"ntropiq/internal/voice"
	"ntropiq/pkg/ntropiqtypes"
)

var (
	chatSessionID string
	chatNew       bool
	chatSpeakDir  string
	chatVoice     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the analytics assistant in the terminal",
	Long: `Start an interactive conversation. Lines starting with "/" are commands:
  /rename <name>   rename the conversation
  /bookmark        toggle the bookmark
  /upload <files>  record uploaded file names
  /connect <name>  record a data source connection
  /artifacts       list artifacts from the latest reply
  /copy [n]        copy artifact n (default 1) to the clipboard
  /speak           synthesise the latest reply (needs --speak-dir)
  /voice           toggle voice input
  /delete          delete the conversation and start a new one
  /quit            leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume the conversation with this id")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new conversation")
	chatCmd.Flags().StringVar(&chatSpeakDir, "speak-dir", "", "Save spoken replies as mp3 files in this directory")
	chatCmd.Flags().BoolVar(&chatVoice, "voice", false, "Enable hands-free voice input")
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	var player conversation.AudioPlayer
	if chatSpeakDir != "" {
		if err := os.MkdirAll(chatSpeakDir, 0750); err != nil {
			return fmt.Errorf("failed to create speech directory: %w", err)
		}
		player = &filePlayer{dir: chatSpeakDir, out: cmd.ErrOrStderr()}
	}

	cfg := a.conversationConfig(player)
	var session *conversation.Session
	switch {
	case chatSessionID != "":
		session, err = conversation.OpenByID(ctx, cfg, chatSessionID)
	case chatNew:
		session, err = conversation.New(ctx, cfg)
	default:
		session, err = conversation.Open(ctx, cfg)
	}
	if err != nil {
		return err
	}
	defer session.Close()

	repl := &chatREPL{session: session, markdown: a.markdown, out: cmd.OutOrStdout()}
	repl.machine = voice.New(voice.Config{
		Draft:          session,
		Submit:         repl.submitVoice,
		SilenceTimeout: a.cfg.Voice.SilenceTimeout,
		ResumeDelay:    a.cfg.Voice.ResumeDelay,
	})
	defer repl.machine.Close()
	if chatVoice {
		repl.toggleVoice()
	}
	if cmd.InOrStdin() == os.Stdin && readline.DefaultIsTerminal() {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "you> ",
			HistoryFile:     filepath.Join(config.DefaultConfigDir(), "chat_history"),
			InterruptPrompt: "^C",
			EOFPrompt:       "/quit",
			Stdout:          cmd.OutOrStdout(),
		})
		if err != nil {
			return fmt.Errorf("failed to start line editor: %w", err)
		}
		defer rl.Close()
		return repl.loop(ctx, readlineLines(rl))
	}
	return repl.run(ctx, cmd.InOrStdin())
}

// chatREPL drives a conversation from line input.
type chatREPL struct {
	session  *conversation.Session
	markdown *services.MarkdownService
	machine  *voice.Machine
	out      io.Writer
}

// lineSource yields input lines. io.EOF ends the session.
type lineSource func() (string, error)

func scannerLines(in io.Reader, out io.Writer) lineSource {
	scanner := bufio.NewScanner(in)
	return func() (string, error) {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return scanner.Text(), nil
	}
}

func readlineLines(rl *readline.Instance) lineSource {
	return func() (string, error) {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return line, err
	}
}

func (r *chatREPL) run(ctx context.Context, in io.Reader) error {
	return r.loop(ctx, scannerLines(in, r.out))
}

func (r *chatREPL) loop(ctx context.Context, next lineSource) error {
	fmt.Fprintf(r.out, "%s (%s)\n\n", r.session.Name(), r.session.ID())
	for _, msg := range r.session.Messages() {
		fmt.Fprintln(r.out, r.markdown.RenderMessage(msg))
	}

	for {
		line, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.post(ctx, line); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *chatREPL) post(ctx context.Context, text string) error {
	if err := r.session.PostMessage(ctx, text); err != nil {
		return err
	}
	r.printLatest()
	return nil
}

// submitVoice posts a transcript captured in voice mode.
func (r *chatREPL) submitVoice(ctx context.Context, text string) {
	if err := r.post(ctx, text); err != nil && !errors.Is(err, conversation.ErrEmptyMessage) {
		logger.Error("Voice submission failed", "error", err)
	}
}

func (r *chatREPL) printLatest() {
	messages := r.session.Messages()
	if len(messages) == 0 {
		return
	}
	fmt.Fprintln(r.out, r.markdown.RenderMessage(messages[len(messages)-1]))
	if panel := r.markdown.RenderArtifacts(r.session.Artifacts()); panel != "" {
		fmt.Fprintln(r.out, panel)
	}
}

func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		return true, nil
	case "rename":
		if err := r.session.Rename(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Renamed to %q\n", r.session.Name())
	case "bookmark":
		if err := r.session.ToggleBookmark(ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Bookmarked: %t\n", r.session.Bookmarked())
	case "upload":
		if arg == "" {
			return false, errors.New("usage: /upload <file> [file...]")
		}
		if err := r.session.RecordUpload(ctx, strings.Fields(arg)); err != nil {
			return false, err
		}
		r.printLatest()
	case "connect":
		if arg == "" {
			return false, errors.New("usage: /connect <source>")
		}
		if err := r.session.RecordConnection(ctx, arg); err != nil {
			return false, err
		}
		r.printLatest()
	case "artifacts":
		panel := r.markdown.RenderArtifacts(r.session.Artifacts())
		if panel == "" {
			panel = "No artifacts"
		}
		fmt.Fprintln(r.out, panel)
	case "copy":
		return false, r.copyArtifact(arg)
	case "speak":
		id := lastAssistantID(r.session.Messages())
		if id == "" {
			return false, errors.New("no assistant message to speak")
		}
		return false, r.session.RequestSpeech(ctx, id)
	case "voice":
		r.toggleVoice()
	case "delete":
		if err := r.session.Delete(ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted. New conversation %s\n", r.session.ID())
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
	return false, nil
}

// copyArtifact copies the n-th artifact (1-based) of the latest reply. Without a
// clipboard the content is printed instead.
func (r *chatREPL) copyArtifact(arg string) error {
	artifacts := r.session.Artifacts()
	n := 1
	if arg != "" {
		var err error
		if n, err = strconv.Atoi(arg); err != nil {
			return fmt.Errorf("usage: /copy [n]")
		}
	}
	if n < 1 || n > len(artifacts) {
		return fmt.Errorf("no artifact %d (have %d)", n, len(artifacts))
	}
	a := artifacts[n-1]
	if err := writeClipboard(a.Content); err != nil {
		logger.Debug("Clipboard unavailable", "error", err)
		fmt.Fprintf(r.out, "%s\n", a.Content)
		return nil
	}
	fmt.Fprintf(r.out, "Copied %s (%d chars)\n", a.Label, len(a.Content))
	return nil
}

func (r *chatREPL) toggleVoice() {
	if err := r.machine.SetVoiceMode(!r.machine.VoiceMode()); err != nil {
		if errors.Is(err, voice.ErrNotSupported) {
			fmt.Fprintln(r.out, "Voice input is not supported in this terminal")
			return
		}
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Voice mode: %t\n", r.machine.VoiceMode())
}

func lastAssistantID(messages []ntropiqtypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ntropiqtypes.RoleAssistant {
			return messages[i].ID
		}
	}
	return ""
}

// filePlayer "plays" audio by writing it to <dir>/<message id>.mp3.
type filePlayer struct {
	dir string
	out io.Writer
}

func (p *filePlayer) Play(messageID string, audio []byte, _ string) {
	path := filepath.Join(p.dir, messageID+".mp3")
	if err := os.WriteFile(path, audio, 0600); err != nil {
		logger.Error("Failed to save speech", "path", path, "error", err)
		return
	}
	fmt.Fprintf(p.out, "speech saved to %s\n", path)
}

func (p *filePlayer) Stop(string) {}

package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/starford/quire/internal/editsession"
)

// Edit opens an article's block document in an external editor and saves
// it when the editor exits. A failed save keeps the edits as a draft, which
// the next Edit of the same article picks up.
func Edit(ctx context.Context, articleID int64, title string, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	editor := strings.TrimSpace(app.editor)
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if strings.TrimSpace(editor) == "" {
		editor = "vi"
	}
	logger := app.logger()

	c, err := openCore(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	in := bufio.NewReader(app.stdin)
	confirm := func(_ context.Context, prompt string) bool {
		fmt.Fprintf(app.stdout, "%s [y/N] ", prompt)
		line, _ := in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
	ctrl := editsession.NewController(fmt.Sprintf("/articles/%d", articleID), confirm)

	var surface *editsession.FileSurface
	factory := func(context.Context) (editsession.ContentSurface, error) {
		s, err := editsession.NewFileSurface(os.TempDir())
		if err != nil {
			return nil, err
		}
		surface = s
		return s, nil
	}

	sess := editsession.NewSession(c.svc, factory, ctrl, editsession.WithDrafts(c.drafts))
	if err := sess.Mount(ctx, articleID); err != nil {
		return err
	}
	defer sess.Unmount()

	if sess.Restored() {
		fmt.Fprintf(app.stdout, "Restored unsaved draft of %q.\n", sess.Title())
	}
	if title != "" {
		if err := sess.SetTitle(title); err != nil {
			return err
		}
	}

	for {
		if err := runEditor(ctx, editor, surface.Path(), app.stdin, app.stdout); err != nil {
			return err
		}
		surface.Sync()
		if sess.State() == editsession.Clean {
			fmt.Fprintln(app.stdout, "No changes.")
			return nil
		}

		a, err := sess.Save(ctx)
		if err == nil {
			fmt.Fprintf(app.stdout, "Saved #%d %s (%s).\n", a.ID, a.Title, a.Slug)
			return nil
		}
		logger.Warn("save failed", slog.Int64("article_id", articleID), slog.String("error", err.Error()))
		fmt.Fprintf(app.stdout, "Save failed: %v\n", err)

		if ctrl.Unload(ctx) {
			return err
		}
	}
}

func runEditor(ctx context.Context, editor, path string, stdin io.Reader, stdout io.Writer) error {
	fields := strings.Fields(editor)
	if len(fields) == 0 {
		return fmt.Errorf("no editor configured")
	}
	cmd := exec.CommandContext(ctx, fields[0], append(fields[1:], path)...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", fields[0], err)
	}
	return nil
}

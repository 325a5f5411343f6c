// Command pixelforge drives the mini app core from a terminal: it authenticates with
// Telegram init data, generates images and sends them to the user's chat
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nkiryanov/pixelforge/internal/models"
)

const usage = `usage: pixelforge [flags] <command> [args]

commands:
  login                 authenticate and print the user
  profile               print the user as backend knows it
  generate <prompt>     generate images, style is set with --style
  history               print generations, newest first
  view <image_id> [next|prev]...
                        open image viewer at the image and swipe
  send <image_id>       send image to the Telegram chat
  styles                list art styles
  logout                forget tokens and cached user
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		slog.Error("pixelforge failed", "error", err.Error())
		os.Exit(1)
	}
}

// run loads config (defaults, .env, env, flags) and executes one command
func run(ctx context.Context, out io.Writer, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()
	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while reading .env: %w", err)
	}
	c.LoadEnv(getenv)
	rest, err := c.ParseFlags(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "styles" {
		for _, s := range models.ArtStyles {
			fmt.Fprintf(out, "%-10s %s\n", s.ID, s.Label)
		}
		return nil
	}

	a, err := NewClientApp(ctx, c, out)
	if err != nil {
		return fmt.Errorf("can't initialize app, sorry: %w", err)
	}
	defer a.Close()
	defer a.PrintToasts()

	if cmd == "logout" {
		return a.Bootstrap.Logout(ctx)
	}

	if err := a.Authenticate(ctx); err != nil {
		return err
	}

	switch cmd {
	case "login":
		user, _ := a.State.User()
		fmt.Fprintf(out, "Logged in as %s (id %d)\n", user.DisplayName(), user.ID)
		return nil

	case "profile":
		if err := a.State.SetTab(models.TabSettings); err != nil {
			return err
		}
		user, err := a.Client.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n@%s\nid %d\n", user.DisplayName(), user.Username, user.ID)
		return nil

	case "generate":
		prompt := strings.Join(cmdArgs, " ")
		record, err := a.State.Generate(ctx, prompt, c.Style)
		if err != nil {
			return err
		}
		printRecord(out, record)
		return nil

	case "history":
		if err := a.State.SetTab(models.TabHistory); err != nil {
			return err
		}
		if err := a.State.LoadHistory(ctx); err != nil {
			return err
		}
		for _, r := range a.State.History() {
			printRecord(out, r)
		}
		return nil

	case "view":
		return view(ctx, a, out, cmdArgs)

	case "send":
		if len(cmdArgs) != 1 {
			return errUsage
		}
		imageID, err := strconv.ParseInt(cmdArgs[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: image id must be a number", errUsage)
		}
		return a.State.Deliver(ctx, imageID)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// view opens the viewer at image and replays swipes, one gesture per step
func view(ctx context.Context, a *ClientApp, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	imageID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: image id must be a number", errUsage)
	}

	if err := a.State.LoadHistory(ctx); err != nil {
		return err
	}
	viewer, settler := a.NewViewer()
	defer viewer.Close()

	if !viewer.Select(imageID) {
		return fmt.Errorf("image %d is not in history", imageID)
	}
	printCurrent(out, viewer)

	const swipe = 120.0
	for _, step := range args[1:] {
		var dx float64
		switch step {
		case "next":
			dx = -swipe
		case "prev":
			dx = swipe
		default:
			return fmt.Errorf("%w: unknown swipe %q", errUsage, step)
		}

		at := time.Now()
		viewer.Begin(0, at)
		viewer.Move(dx, at.Add(150*time.Millisecond))
		viewer.End()
		settler.Settle()

		printCurrent(out, viewer)
	}
	return nil
}

type imageViewer interface {
	Counter() string
	Current() (models.ImageRef, bool)
}

func printCurrent(out io.Writer, v imageViewer) {
	img, _ := v.Current()
	fmt.Fprintf(out, "%s  #%d %s\n", v.Counter(), img.ID, img.URL)
}

func printRecord(out io.Writer, r models.GenerationRecord) {
	fmt.Fprintf(out, "%s  %s\n", r.Timestamp.Local().Format(time.DateTime), r.ID)
	for _, img := range r.Images {
		fmt.Fprintf(out, "  #%d %s\n", img.ID, img.URL)
	}
}

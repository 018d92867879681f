package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/services"
	"github.com/desertthunder/spotlink/internal/tasks"
)

// Poll runs the device poll loop and prints each snapshot.
func (r *Runner) Poll(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := services.NewLinkClient(cmd.String("server"), r.httpClient)
	poller := tasks.NewPoller(client, r.logger, tasks.PollOpts{
		DeviceID: cmd.String("device"),
		Interval: cmd.Duration("interval"),
		MaxPolls: cmd.Int("count"),
	})

	out := make(chan models.Playback)
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx, out, progress)
		close(out)
	}()

	asJSON := cmd.Bool("json")
	for {
		select {
		case playback, ok := <-out:
			if !ok {
				return <-done
			}
			if err := r.printPlayback(playback, asJSON); err != nil {
				return err
			}
		case update := <-progress:
			if update.Err != nil {
				r.logger.Warn(update.Message, "phase", update.Phase, "err", update.Err)
			} else if update.Phase != tasks.FetchPlayback {
				r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step)
			}
		}
	}
}

func (r *Runner) printPlayback(playback models.Playback, asJSON bool) error {
	if asJSON {
		return r.writeJSON(playback, false)
	}

	snap, ok := playback.(models.PlaybackSnapshot)
	if !ok {
		return r.writePlain("%s\n", r.palette.help.Render("nothing playing"))
	}

	state := r.palette.ok.Render("▶")
	if !snap.IsPlaying {
		state = r.palette.warn.Render("❚❚")
	}
	line := snap.Title.OrElse("Unknown") + " - " + snap.Artist.OrElse("Unknown")
	if album, ok := snap.Album.Get(); ok {
		line += " (" + album + ")"
	}
	return r.writePlain("%s %s\n", state, line)
}

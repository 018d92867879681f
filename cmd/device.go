package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlink/internal/linking"
	"github.com/desertthunder/spotlink/internal/models"
	"github.com/desertthunder/spotlink/internal/services"
	"github.com/desertthunder/spotlink/internal/shared"
)

type deviceView struct {
	ID        string    `json:"deviceId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

func viewOf(d *models.Device) deviceView {
	status := "registered"
	if d.Linked() {
		status = "linked"
	}
	return deviceView{ID: d.ID(), Status: status, CreatedAt: d.CreatedAt(), UpdatedAt: d.UpdatedAt()}
}

// DeviceRegister registers a device through a running server, the way a device does at boot.
func (r *Runner) DeviceRegister(ctx context.Context, cmd *cli.Command) error {
	deviceID := strings.TrimSpace(cmd.StringArg("id"))
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}

	client := services.NewLinkClient(cmd.String("server"), r.httpClient)
	reg, err := client.Register(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(reg, true)
	}

	if reg.Action == models.ActionLinked {
		return r.writePlain("%s %s is already linked\n", r.palette.ok.Render("✓"), deviceID)
	}

	r.writePlain("%s\n", r.palette.title.Render("Authorize "+deviceID))
	r.writePlain("%s\n", reg.AuthorizationURL)

	if cmd.Bool("open") {
		if err := shared.OpenBrowser(ctx, reg.AuthorizationURL); err != nil {
			r.logger.Warn("failed to open browser", "err", err)
			r.writePlain("%s\n", r.palette.help.Render("Open the URL above in a browser to continue."))
		}
	}
	return nil
}

// DeviceStatus prints whether a device is linked.
func (r *Runner) DeviceStatus(ctx context.Context, cmd *cli.Command) error {
	deviceID := strings.TrimSpace(cmd.StringArg("id"))
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}

	db, repo, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	view := deviceView{ID: deviceID, Status: "unknown"}
	device, err := r.newLinker(repo).Status(ctx, deviceID)
	switch {
	case errors.Is(err, linking.ErrDeviceNotRegistered):
	case err != nil:
		return err
	default:
		view = viewOf(device)
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}

	label := r.palette.err.Render("unknown")
	if device != nil {
		label = r.palette.linkState(device.Linked())
	}
	return r.writePlain("%s: %s\n", deviceID, label)
}

// DeviceList prints registered devices.
func (r *Runner) DeviceList(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("linked") && cmd.Bool("pending") {
		return fmt.Errorf("%w: --linked and --pending are exclusive", shared.ErrInvalidArgument)
	}

	var filter *bool
	switch {
	case cmd.Bool("linked"):
		linked := true
		filter = &linked
	case cmd.Bool("pending"):
		linked := false
		filter = &linked
	}

	db, repo, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	devices, err := r.newLinker(repo).Devices(ctx, filter)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]deviceView, 0, len(devices))
		for _, d := range devices {
			views = append(views, viewOf(d))
		}
		return r.writeJSON(views, true)
	}

	if len(devices) == 0 {
		return r.writePlain("%s\n", r.palette.help.Render("No devices."))
	}

	r.writePlain("%s\n", r.palette.title.Render(fmt.Sprintf("Devices (%d)", len(devices))))
	for _, d := range devices {
		r.writePlain("  %-32s %s  %s\n", d.ID(), r.palette.linkState(d.Linked()), d.UpdatedAt().Format(time.RFC3339))
	}
	return nil
}
